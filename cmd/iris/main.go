package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/iris-chat/internal/config"
)

var (
	// Global flags
	verbose      bool
	serverURL    string
	clientID     string
	uploadURL    string
	dbPath       string
	contactsFile string
	callsEnabled bool
	logFile      string
	waitTimeout  time.Duration

	cfg    *config.ClientConfig
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "iris",
	Short: "Iris - chat client for the Iris assistant",
	Long: `iris talks to the Iris assistant over a persistent WebSocket channel.

Replies may carry actions: placing a phone call to a contact, or starting a
timed meditation session with a looping background sound.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.LoadClient()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		applyFlags(cmd, loaded)
		cfg = loaded

		// The TUI owns the terminal, so logs always go to a file.
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		zcfg.OutputPaths = []string{cfg.LogFile}
		zcfg.ErrorOutputPaths = []string{cfg.LogFile}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runInteractiveChat(cmd.Context())
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat(cmd.Context())
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message and print the assistant's reply",
	Long: `Connects, sends a single message and waits for the reply. Actions in the
reply are carried out exactly as in the interactive interface.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored conversation",
	RunE:  runHistory,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [message-id]",
	Short: "Delete one message from the stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the whole stored conversation",
	RunE:  runClear,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Assistant channel URL (env: IRIS_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "Client identifier (env: IRIS_CLIENT_ID)")
	rootCmd.PersistentFlags().StringVar(&uploadURL, "upload-url", "", "Attachment upload endpoint (env: IRIS_UPLOAD_URL)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Conversation database path (env: IRIS_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&contactsFile, "contacts", "", "Contacts YAML file (env: IRIS_CONTACTS_FILE)")
	rootCmd.PersistentFlags().BoolVar(&callsEnabled, "calls", false, "Allow the assistant to place calls (env: IRIS_CALLS_ENABLED)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (env: IRIS_LOG_FILE)")

	sendCmd.Flags().DurationVar(&waitTimeout, "timeout", 2*time.Minute, "How long to wait for the connection and the reply")

	rootCmd.AddCommand(chatCmd, sendCmd, historyCmd, deleteCmd, clearCmd)
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, c *config.ClientConfig) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		c.ServerURL = serverURL
	}
	if flags.Changed("client-id") {
		c.ClientID = clientID
	}
	if flags.Changed("upload-url") {
		c.UploadURL = uploadURL
	}
	if flags.Changed("db") {
		c.DBPath = dbPath
	}
	if flags.Changed("contacts") {
		c.ContactsFile = contactsFile
	}
	if flags.Changed("calls") {
		c.CallsEnabled = callsEnabled
	}
	if flags.Changed("log-file") {
		c.LogFile = logFile
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
