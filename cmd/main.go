package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flashmart/seckill"
	"github.com/flashmart/seckill/config"
	"github.com/flashmart/seckill/database"
	"github.com/flashmart/seckill/internal/notification"
)

// CLI wraps the root Cobra command for the seckill application.
type CLI struct {
	cmd *cobra.Command
}

// seckillInstance holds the engine and its configuration so subcommands can
// share a single initialized instance.
type seckillInstance struct {
	engine *seckill.Seckill
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the engine before any
// subcommand runs.
func preRun(app *seckillInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("seckill.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		engine, err := setupEngine(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.engine = engine
		app.cnf = cnf

		return nil
	}
}

// setupEngine connects the data source and builds the engine from it.
func setupEngine(cfg *config.Configuration) (*seckill.Seckill, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	engine, err := seckill.NewSeckill(db)
	if err != nil {
		return nil, fmt.Errorf("error creating seckill engine: %v", err)
	}
	return engine, nil
}

// NewCLI sets up the root command and its subcommands.
func NewCLI() *CLI {
	var configFile string
	b := &seckillInstance{}

	var rootCmd = &cobra.Command{
		Use:   "seckill",
		Short: "Flash-sale admission control engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./seckill.json", "Configuration file for the seckill engine")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
