package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-concierge/backend/internal/app"
	"github.com/zhouzirui/z-concierge/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-concierge/backend/internal/model/speech"
	"github.com/zhouzirui/z-concierge/backend/internal/redact"
	"github.com/zhouzirui/z-concierge/backend/internal/service/speech"
)

type rootOptions struct {
	envFile         string
	usersCSV        string
	transactionsCSV string
	generalDocs     []string
	personalDocs    []string
	requestTimeout  time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "concierge-cli",
		Short:         "Talk to the concierge and exercise its speech endpoints from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&opts.usersCSV, "users", "", "user records CSV (overrides CONCIERGE_USERS_CSV)")
	root.PersistentFlags().StringVar(&opts.transactionsCSV, "transactions", "", "transactions CSV (overrides CONCIERGE_TRANSACTIONS_CSV)")
	root.PersistentFlags().StringSliceVar(&opts.generalDocs, "docs", nil, "documents for the general agent")
	root.PersistentFlags().StringSliceVar(&opts.personalDocs, "personal-docs", nil, "documents for the personal concierge agent")
	root.PersistentFlags().DurationVar(&opts.requestTimeout, "timeout", 45*time.Second, "timeout for a single model request")

	root.AddCommand(newChatCmd(opts), newTranscribeCmd(opts), newSpeakCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	if err := godotenv.Load(o.envFile); err != nil {
		log.Printf("[WARN] 无法加载 %s，改用系统环境变量: %v", o.envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("配置加载失败: %w", err)
	}
	if o.usersCSV != "" {
		cfg.Concierge.UsersCSV = o.usersCSV
	}
	if o.transactionsCSV != "" {
		cfg.Concierge.TransactionsCSV = o.transactionsCSV
	}
	if len(o.generalDocs) > 0 {
		cfg.Concierge.GeneralDocuments = o.generalDocs
	}
	if len(o.personalDocs) > 0 {
		cfg.Concierge.PersonalDocuments = o.personalDocs
	}
	redact.SetEnabled(cfg.Concierge.RedactLogs)
	return cfg, nil
}

func (o *rootOptions) concierge(ctx context.Context) (*app.Concierge, *config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	clients, err := app.NewClients(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	c := app.New(cfg, clients, nil)
	if err := c.Preload(ctx, cfg.Concierge); err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive concierge session (/reset clears it, /quit exits)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cfg, err := opts.concierge(cmd.Context())
			if err != nil {
				return err
			}
			repl := &REPL{
				Sessions:    c.Chat,
				TurnTimeout: cfg.Concierge.TurnTimeout,
				In:          cmd.InOrStdin(),
				Out:         cmd.OutOrStdout(),
			}
			return repl.Run(cmd.Context())
		},
	}
}

func newTranscribeCmd(opts *rootOptions) *cobra.Command {
	var format, language string
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file with the configured speech-to-text model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.speech()
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("打开音频文件失败: %w", err)
			}
			defer file.Close()

			if format == "" {
				format = speech.DetectInputFormat(args[0], "")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.requestTimeout)
			defer cancel()

			resp, err := svc.TranscribeAudio(ctx, &speechmodel.ASRRequest{
				SessionID: "cli",
				AudioData: file,
				Format:    format,
				Language:  language,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "audio format, inferred from the file extension when empty")
	cmd.Flags().StringVar(&language, "lang", "", "ISO-639-1 language hint")
	return cmd
}

func newSpeakCmd(opts *rootOptions) *cobra.Command {
	var voice, format, output string
	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize text to an audio file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.speech()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.requestTimeout)
			defer cancel()

			resp, err := svc.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
				SessionID: "cli",
				Text:      strings.Join(args, " "),
				Voice:     voice,
				Format:    format,
			})
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
			}
			if err := os.WriteFile(filepath.Clean(output), resp.AudioData, 0o644); err != nil {
				return fmt.Errorf("写入音频文件失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s (voice=%s)\n", len(resp.AudioData), output, resp.Voice)
			return nil
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "voice name, defaults to OPENAI_TTS_VOICE")
	cmd.Flags().StringVar(&format, "format", "", "output format, defaults to OPENAI_TTS_FORMAT")
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file")
	return cmd
}

func (o *rootOptions) speech() (*speech.Service, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if !cfg.OpenAI.Enabled() {
		return nil, speech.ErrServiceDisabled
	}
	client, err := cfg.OpenAI.NewClient()
	if err != nil {
		return nil, err
	}
	return speech.NewService(client, cfg.OpenAI), nil
}
