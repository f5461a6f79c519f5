// dax-cli is a command-line shell around the client, for poking at a
// cluster: single-item reads and writes, scans, and table metadata.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	dax "github.com/datasage/amazon-dax-client"
)

func main() {
	app := &cli.App{
		Name:  "dax-cli",
		Usage: "interact with a DAX cluster from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "endpoint", Usage: "cluster endpoint URL (dax:// or daxs://)"},
			&cli.StringFlag{Name: "region", Usage: "AWS region of the cluster"},
			&cli.StringFlag{Name: "config", Usage: "TOML config `FILE`; flags override its values"},
			&cli.StringFlag{Name: "access-key", Usage: "static AWS access key id"},
			&cli.StringFlag{Name: "secret-key", Usage: "static AWS secret access key"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:      "get-item",
				Usage:     "read one item",
				ArgsUsage: "<table> <key-json>",
				Action:    withClient(cmdGetItem),
			},
			{
				Name:      "put-item",
				Usage:     "write one item",
				ArgsUsage: "<table> <item-json>",
				Action:    withClient(cmdPutItem),
			},
			{
				Name:      "delete-item",
				Usage:     "delete one item",
				ArgsUsage: "<table> <key-json>",
				Action:    withClient(cmdDeleteItem),
			},
			{
				Name:      "query",
				Usage:     "run a key-condition query",
				ArgsUsage: "<params-json>",
				Action:    withClient(cmdQuery),
			},
			{
				Name:      "scan",
				Usage:     "scan a table",
				ArgsUsage: "<table>",
				Action:    withClient(cmdScan),
			},
			{
				Name:      "describe-table",
				Usage:     "show a table description",
				ArgsUsage: "<table>",
				Action:    withClient(cmdDescribeTable),
			},
			{
				Name:   "dumpconfig",
				Usage:  "write the effective configuration as TOML",
				Action: cmdDumpConfig,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dax-cli:", err)
		os.Exit(1)
	}
}

// fileConfig mirrors the TOML config file layout.
type fileConfig struct {
	EndpointURL              string
	Endpoints                []string
	Region                   string
	AccessKey                string
	SecretKey                string
	ConnectTimeoutMs         int
	RequestTimeoutMs         int
	SkipHostnameVerification bool
	Debug                    bool
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fc, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&fc); err != nil {
		return fc, errors.Wrapf(err, "config file %s", path)
	}
	return fc, nil
}

// effectiveConfig merges the config file with the command-line flags, flags
// winning.
func effectiveConfig(c *cli.Context) (fileConfig, error) {
	fc, err := loadFileConfig(c.String("config"))
	if err != nil {
		return fc, err
	}
	if v := c.String("endpoint"); v != "" {
		fc.EndpointURL = v
		fc.Endpoints = nil
	}
	if v := c.String("region"); v != "" {
		fc.Region = v
	}
	if v := c.String("access-key"); v != "" {
		fc.AccessKey = v
	}
	if v := c.String("secret-key"); v != "" {
		fc.SecretKey = v
	}
	if c.Bool("debug") {
		fc.Debug = true
	}
	return fc, nil
}

func buildClient(c *cli.Context) (*dax.Client, error) {
	fc, err := effectiveConfig(c)
	if err != nil {
		return nil, err
	}

	var creds aws.CredentialsProvider
	if fc.AccessKey != "" {
		creds = credentials.NewStaticCredentialsProvider(fc.AccessKey, fc.SecretKey, "")
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(c.Context, awsconfig.WithRegion(fc.Region))
		if err != nil {
			return nil, errors.Wrap(err, "loading AWS credentials")
		}
		creds = awsCfg.Credentials
		if fc.Region == "" {
			fc.Region = awsCfg.Region
		}
	}

	logger := logrus.New()
	if fc.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	return dax.NewClient(dax.Config{
		EndpointURL:              fc.EndpointURL,
		Endpoints:                fc.Endpoints,
		Region:                   fc.Region,
		Credentials:              creds,
		ConnectTimeout:           time.Duration(fc.ConnectTimeoutMs) * time.Millisecond,
		RequestTimeout:           time.Duration(fc.RequestTimeoutMs) * time.Millisecond,
		SkipHostnameVerification: fc.SkipHostnameVerification,
		DebugLogging:             fc.Debug,
		Logger:                   logger,
	})
}

// withClient builds a client for the command and closes it afterwards.
func withClient(fn func(ctx context.Context, client *dax.Client, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := buildClient(c)
		if err != nil {
			return err
		}
		defer client.Close()
		return fn(c.Context, client, c)
	}
}

func jsonArg(c *cli.Context, index int, what string) (map[string]any, error) {
	raw := c.Args().Get(index)
	if raw == "" {
		return nil, errors.Errorf("missing %s argument", what)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", what)
	}
	return m, nil
}

func tableArg(c *cli.Context) (string, error) {
	table := c.Args().First()
	if table == "" {
		return "", errors.New("missing table argument")
	}
	return table, nil
}

func printReply(reply map[string]any) error {
	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdGetItem(ctx context.Context, client *dax.Client, c *cli.Context) error {
	table, err := tableArg(c)
	if err != nil {
		return err
	}
	key, err := jsonArg(c, 1, "key")
	if err != nil {
		return err
	}
	reply, err := client.GetItem(ctx, map[string]any{"TableName": table, "Key": key})
	if err != nil {
		return err
	}
	return printReply(reply)
}

func cmdPutItem(ctx context.Context, client *dax.Client, c *cli.Context) error {
	table, err := tableArg(c)
	if err != nil {
		return err
	}
	item, err := jsonArg(c, 1, "item")
	if err != nil {
		return err
	}
	reply, err := client.PutItem(ctx, map[string]any{"TableName": table, "Item": item})
	if err != nil {
		return err
	}
	return printReply(reply)
}

func cmdDeleteItem(ctx context.Context, client *dax.Client, c *cli.Context) error {
	table, err := tableArg(c)
	if err != nil {
		return err
	}
	key, err := jsonArg(c, 1, "key")
	if err != nil {
		return err
	}
	reply, err := client.DeleteItem(ctx, map[string]any{"TableName": table, "Key": key})
	if err != nil {
		return err
	}
	return printReply(reply)
}

func cmdQuery(ctx context.Context, client *dax.Client, c *cli.Context) error {
	params, err := jsonArg(c, 0, "params")
	if err != nil {
		return err
	}
	reply, err := client.Query(ctx, params)
	if err != nil {
		return err
	}
	return printReply(reply)
}

func cmdScan(ctx context.Context, client *dax.Client, c *cli.Context) error {
	table, err := tableArg(c)
	if err != nil {
		return err
	}
	reply, err := client.Scan(ctx, map[string]any{"TableName": table})
	if err != nil {
		return err
	}
	return printReply(reply)
}

func cmdDescribeTable(ctx context.Context, client *dax.Client, c *cli.Context) error {
	table, err := tableArg(c)
	if err != nil {
		return err
	}
	reply, err := client.DescribeTable(ctx, map[string]any{"TableName": table})
	if err != nil {
		return err
	}
	return printReply(reply)
}

func cmdDumpConfig(c *cli.Context) error {
	fc, err := effectiveConfig(c)
	if err != nil {
		return err
	}
	fc.SecretKey = "" // never echo secrets
	out, err := toml.Marshal(fc)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}
