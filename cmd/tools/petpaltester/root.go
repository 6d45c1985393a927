package main

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	baseURL string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "petpaltester",
	Short: "Manual test client for the PetPal health backend",
	Long: `petpaltester talks to a running PetPal health backend.

Examples:
  # One-shot text consultation
  petpaltester text "Rex has been scratching his ear" --dog-name Rex

  # Streamed text consultation
  petpaltester text "Is chocolate dangerous?" --stream

  # Live voice round trip with 16kHz mono PCM input
  petpaltester live --audio question.pcm --out reply.pcm
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		baseURL = strings.TrimRight(baseURL, "/")
	},
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	defaultURL := os.Getenv("PETPAL_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVarP(&baseURL, "url", "u", defaultURL, "backend base URL (env PETPAL_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every frame")

	rootCmd.AddCommand(textCmd)
	rootCmd.AddCommand(liveCmd)
}
