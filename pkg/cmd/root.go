package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"

	_ "github.com/go-sql-driver/mysql"

	"github.com/quakelab/etasfit/pkg/cmd/cmdutil"
)

var RootCmd = &cobra.Command{
	Use:   "etasfit",
	Short: "ETAS aftershock parameter fitting",
	Long:  "grid search fitting of ETAS aftershock parameters and posterior ensemble selection",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dotenvFile, err := cmd.Flags().GetString("dotenv")
		if err != nil {
			return err
		}

		if _, err := os.Stat(dotenvFile); err == nil {
			if err := godotenv.Load(dotenvFile); err != nil {
				return err
			}
		}

		// flags are parsed and the dotenv file is loaded by now
		setupLogging(log.StandardLogger(), viper.GetBool("debug"), os.Getenv("ETASFIT_ENV"), viper.GetString("log-dir"))
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	RootCmd.PersistentFlags().Bool("debug", false, "debug flag")
	RootCmd.PersistentFlags().String("dotenv", ".env.local", "the dotenv file to load before running")
	RootCmd.PersistentFlags().String("log-dir", "log", "log directory used in production")

	cmdutil.PersistentFlags(RootCmd.PersistentFlags())
}

func Execute() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Enable environment variable binding, the env vars are not overloaded yet.
	viper.SetEnvPrefix("etasfit")
	viper.AutomaticEnv()

	// Once the flags are defined, we can bind config keys with flags.
	if err := viper.BindPFlags(RootCmd.PersistentFlags()); err != nil {
		log.WithError(err).Errorf("failed to bind persistent flags. please check the flag settings.")
	}

	if err := viper.BindPFlags(RootCmd.Flags()); err != nil {
		log.WithError(err).Errorf("failed to bind local flags. please check the flag settings.")
	}

	if err := RootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("cannot execute command")
	}
}

func setupLogging(logger *log.Logger, debug bool, environment, logDir string) {
	logger.SetFormatter(&prefixed.TextFormatter{})

	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	switch environment {
	case "production", "prod":
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "etasfit.log"),
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     28,
		}
		logger.AddHook(
			lfshook.NewHook(
				lfshook.WriterMap{
					log.DebugLevel: writer,
					log.InfoLevel:  writer,
					log.WarnLevel:  writer,
					log.ErrorLevel: writer,
					log.FatalLevel: writer,
				},
				&log.JSONFormatter{},
			),
		)
	}
}
