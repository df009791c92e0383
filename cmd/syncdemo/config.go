package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config is the user-visible configuration for running the sync-engine
// demo.
type Config struct {
	Collection  string
	InitialUser string
	ChaosProb   float32
	WriteBatch  int
	TxnRetries  int
	MetricsAddr string
}

// Bind registers flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.Collection, "collection", "users", "collection path to listen against")
	flags.StringVar(&c.InitialUser, "user", "demo-user", "initial signed-in user id")
	flags.Float32Var(&c.ChaosProb, "chaosProbability", 0, "probability (0-1) of injected remote-store failures")
	flags.IntVar(&c.WriteBatch, "writeBatchSize", 3, "number of mutations to queue in the demo write")
	flags.IntVar(&c.TxnRetries, "transactionRetries", 2, "retry budget for the demo transaction")
	flags.StringVar(&c.MetricsAddr, "metricsAddr", ":9090", "address to serve /metrics on")
}

// Preflight validates c.
func (c *Config) Preflight() error {
	if c.Collection == "" {
		return errors.New("collection unset")
	}
	if c.InitialUser == "" {
		return errors.New("user unset")
	}
	if c.ChaosProb < 0 || c.ChaosProb > 1 {
		return errors.New("chaosProbability must be within [0, 1]")
	}
	if c.WriteBatch <= 0 {
		return errors.New("writeBatchSize must be positive")
	}
	if c.TxnRetries < 0 {
		return errors.New("transactionRetries must be >= 0")
	}
	return nil
}
