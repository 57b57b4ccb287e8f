package main

import "github.com/urfave/cli/v2"

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		Required: true,
	}
}

func promptsFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "prompts-file",
		Usage: "YAML file of prompt templates (default: built-in prompts)",
	}
}

func tenantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "tenant",
			Usage: "Tenant identifier",
			Value: "default",
		},
		&cli.StringFlag{
			Name:  "neo4j-uri",
			Usage: "Destination store URI",
			Value: "bolt://localhost:7687",
		},
		&cli.StringFlag{
			Name:  "neo4j-user",
			Usage: "Destination store username",
			Value: "neo4j",
		},
		&cli.StringFlag{
			Name:    "neo4j-password",
			Usage:   "Destination store password",
			EnvVars: []string{"GRAPHMILL_NEO4J_PASSWORD"},
		},
		&cli.StringFlag{
			Name:  "neo4j-database",
			Usage: "Destination store database name",
			Value: "neo4j",
		},
	}
}

func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "ai-host",
			Usage: "OpenAI-compatible service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "generation-model",
			Usage: "Text generation model name",
			Value: "qwen2.5:14b",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:    "ai-token",
			Usage:   "API token (local services accept any value)",
			Value:   "none",
			EnvVars: []string{"GRAPHMILL_AI_TOKEN"},
		},
	}
}

func joinFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, group := range groups {
		flags = append(flags, group...)
	}
	return flags
}
