package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/localnerve/proposaldb/internal/testenv"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	flag.Parse()

	usage := `
Run the proposaldb stores (MariaDB and MongoDB) in Docker with the
environment variables from the .env file.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH]

ENV_FILE_PATH: path to the .env file (MARIADB_IMAGE, MONGO_IMAGE)

example
  testcontainers -f /path/to/something/.env
`
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	} else {
		log.Printf("No environment file specified, using current environment variables\n")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	containers := make(chan *testenv.Containers, 1)
	go func() {
		containers <- testenv.StartContainers(nil)
	}()

	var running *testenv.Containers
	select {
	case running = <-containers:
		cfg := running.Config()
		log.Printf("Stores ready. Export:\n  DB_TYPE=mariadb DB_HOST=%s DB_PORT=%s DB_DATABASE=%s DB_USER=%s DB_PASSWORD=%s\n  MONGO_URI=%s MONGO_DATABASE=%s\n",
			cfg.DBHost, cfg.DBPort, cfg.DBDatabase, cfg.DBUser, cfg.DBPassword, cfg.MongoURI, cfg.MongoDatabase)
		sig := <-sigs
		log.Printf("\nReceived signal: %v, terminating containers...\n", sig)
	case sig := <-sigs:
		log.Printf("\nReceived signal: %v before the containers were ready\n", sig)
		running = <-containers
	}
	running.Terminate(nil)
}
