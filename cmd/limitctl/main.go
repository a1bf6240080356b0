// limitctl inspects and manages limiter state in the shared store. It is the
// operational escape hatch for stuck budgets: list what is held, check TTLs,
// and delete or purge keys that a crashed process left behind.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli"

	"github.com/manenim/gatekeep/pkg/limiter"
	"github.com/manenim/gatekeep/pkg/store"
)

func main() {
	app := cli.NewApp()
	app.Name = "limitctl"
	app.Usage = "inspect and manage limiter state in the shared store"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "redis",
			Value:  "localhost:6379",
			Usage:  "redis address",
			EnvVar: "REDIS_ADDR",
		},
		cli.StringFlag{
			Name:  "prefix",
			Value: limiter.DefaultPrefix,
			Usage: "key prefix the limiters were configured with",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Second,
			Usage: "per-operation timeout",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "list",
			Usage: "list limiter keys under the prefix",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "with-values", Usage: "show stored state for each key"},
				cli.BoolFlag{Name: "with-ttl", Usage: "show remaining TTL for each key"},
			},
			Action: listAction,
		},
		{
			Name:      "get",
			Usage:     "print the stored state for one key",
			ArgsUsage: "<key>",
			Action:    getAction,
		},
		{
			Name:      "delete",
			Usage:     "delete keys matching regular expressions",
			ArgsUsage: "<regex> [<regex>...]",
			Action:    deleteAction,
		},
		{
			Name:   "purge",
			Usage:  "delete every key under the prefix",
			Action: purgeAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newStore(c *cli.Context) (*store.RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: c.GlobalString("redis")})
	return store.NewRedisStore(client, store.WithTimeout(c.GlobalDuration("timeout")))
}

func listAction(c *cli.Context) error {
	st, err := newStore(c)
	if err != nil {
		return err
	}
	entries, err := st.List(context.Background(), c.GlobalString("prefix")+"*")
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := e.Key
		if c.Bool("with-values") {
			line += " = " + string(e.Value)
		}
		if c.Bool("with-ttl") {
			if e.TTL > 0 {
				line += fmt.Sprintf(" (expires in %s)", e.TTL.Round(time.Millisecond))
			} else {
				line += " (no expire)"
			}
		}
		fmt.Println(line)
	}
	return nil
}

func getAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("get needs exactly one key", 1)
	}
	st, err := newStore(c)
	if err != nil {
		return err
	}
	key := c.Args().First()
	val, found, err := st.Get(context.Background(), key)
	if err != nil {
		return err
	}
	if !found {
		return cli.NewExitError(fmt.Sprintf("%s not found", key), 1)
	}
	fmt.Printf("%s = %s\n", key, val)
	return nil
}

func deleteAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("delete needs at least one regular expression", 1)
	}
	patterns := make([]*regexp.Regexp, 0, c.NArg())
	for _, arg := range c.Args() {
		re, err := regexp.Compile(arg)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("bad pattern %q: %v", arg, err), 1)
		}
		patterns = append(patterns, re)
	}

	st, err := newStore(c)
	if err != nil {
		return err
	}
	ctx := context.Background()
	entries, err := st.List(ctx, c.GlobalString("prefix")+"*")
	if err != nil {
		return err
	}

	num := 0
	for _, e := range entries {
		for _, re := range patterns {
			if !re.MatchString(e.Key) {
				continue
			}
			if ok, err := st.Delete(ctx, e.Key); err != nil {
				return err
			} else if ok {
				num++
				fmt.Println("deleted:", e.Key)
			}
			break
		}
	}
	fmt.Printf("in total %d keys deleted\n", num)
	return nil
}

func purgeAction(c *cli.Context) error {
	st, err := newStore(c)
	if err != nil {
		return err
	}
	num, err := st.Purge(context.Background(), c.GlobalString("prefix")+"*")
	if err != nil {
		return err
	}
	fmt.Printf("purged %d keys\n", num)
	return nil
}
