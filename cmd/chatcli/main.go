// Command chatcli is a terminal front end for the chat server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"qrchat/internal/chatview"
	"qrchat/internal/models"
	"qrchat/internal/qr"
)

var (
	serverURL string
	autoSpeak bool
	speakCmd  string
	replyOut  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Terminal client for the product chat assistant",
		Long: `Type a message and press enter to chat. Commands:
  /qr <payload>          ask about the product in a scanned QR payload
  /qr-image <file...>    scan QR codes from image files
  /image <name...>       attach images to the next message
  /voice <file> [out]    send a recorded question, save the spoken reply
  /speak on|off          toggle reading replies aloud
  /history               reload the transcript
  /quit                  exit`,
		RunE: runInteractive,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CHATBOT_URL", "http://localhost:5000"), "chat server base URL")
	rootCmd.PersistentFlags().BoolVar(&autoSpeak, "auto-speak", false, "read replies aloud")
	rootCmd.PersistentFlags().StringVar(&speakCmd, "speak-cmd", "say", "command used to read replies aloud; the text is passed as the last argument")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Print the transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newView()
			if err := v.Refresh(cmd.Context()); err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), v.Messages())
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newView()
			v.SetInput(strings.Join(args, " "))
			return submit(cmd.Context(), cmd.OutOrStdout(), v)
		},
	})

	voiceCmd := &cobra.Command{
		Use:   "voice <audio-file>",
		Short: "Send a recorded question and save the spoken reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendVoice(cmd.Context(), cmd.OutOrStdout(), newView(), args[0], replyOut)
		},
	}
	voiceCmd.Flags().StringVarP(&replyOut, "out", "o", "reply.mp3", "where to write the spoken reply")
	rootCmd.AddCommand(voiceCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "scan <image-file...>",
		Short: "Scan QR codes from images and ask about the product",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newView()
			if err := scanImages(cmd.Context(), cmd.OutOrStdout(), v, args); err != nil {
				return err
			}
			return submit(cmd.Context(), cmd.OutOrStdout(), v)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newView() *chatview.View {
	var speaker chatview.Speaker
	if fields := strings.Fields(speakCmd); len(fields) > 0 {
		speaker = execSpeaker{name: fields[0], args: fields[1:]}
	}
	v := chatview.NewView(chatview.NewClient(serverURL, nil), speaker)
	v.SetAutoSpeak(autoSpeak)
	return v
}

func runInteractive(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	v := newView()
	if err := v.Refresh(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", serverURL, err)
	}
	printMessages(out, v.Messages())

	lines := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, color.Cyan.Sprint("> "))
		if !lines.Scan() {
			return lines.Err()
		}
		quit, err := handleLine(ctx, out, v, lines.Text())
		if err != nil {
			fmt.Fprintln(out, color.Red.Sprintf("error: %v", err))
		}
		if quit {
			return nil
		}
	}
}

// handleLine runs one line of interactive input: a slash command or a chat
// message.
func handleLine(ctx context.Context, out io.Writer, v *chatview.View, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		v.SetInput(line)
		return false, submit(ctx, out, v)
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/history":
		if err := v.Refresh(ctx); err != nil {
			return false, err
		}
		printMessages(out, v.Messages())
	case "/qr":
		if len(args) == 0 {
			return false, errors.New("usage: /qr <payload>")
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		v.ApplyScan(payload)
		return false, submit(ctx, out, v)
	case "/qr-image":
		if len(args) == 0 {
			return false, errors.New("usage: /qr-image <file...>")
		}
		if err := scanImages(ctx, out, v, args); err != nil {
			return false, err
		}
		return false, submit(ctx, out, v)
	case "/image":
		if len(args) == 0 {
			return false, errors.New("usage: /image <name...>")
		}
		if err := v.StageImages(args...); err != nil {
			return false, err
		}
		fmt.Fprintln(out, color.Gray.Sprintf("%d image(s) staged for the next message", len(v.StagedImages())))
	case "/voice":
		if len(args) == 0 {
			return false, errors.New("usage: /voice <file> [out]")
		}
		dest := "reply.mp3"
		if len(args) > 1 {
			dest = args[1]
		}
		return false, sendVoice(ctx, out, v, args[0], dest)
	case "/speak":
		on := len(args) == 0 || args[0] == "on"
		v.SetAutoSpeak(on)
		fmt.Fprintln(out, color.Gray.Sprintf("auto-speak %v", on))
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

func submit(ctx context.Context, out io.Writer, v *chatview.View) error {
	result, err := v.Submit(ctx)
	if result != nil && result.AIMessage != nil {
		printMessage(out, result.AIMessage)
	}
	var apiErr *chatview.APIError
	if errors.As(err, &apiErr) && len(apiErr.Errors) > 0 {
		return fmt.Errorf("%s: %s", apiErr.Message, apiErr.Errors[0].Message)
	}
	return err
}

func scanImages(ctx context.Context, out io.Writer, v *chatview.View, paths []string) error {
	v.SetScannerVisible(true)
	scanner := qr.NewScanner(qr.NewImageFiles(paths...), nil, nil)
	scanner.Interval = 0
	payload, err := scanner.Scan(ctx)
	if err != nil {
		v.SetScannerVisible(false)
		if errors.Is(err, io.EOF) {
			return errors.New("no QR code found in the given images")
		}
		return err
	}
	prompt := v.ApplyScan(payload)
	fmt.Fprintln(out, color.Gray.Sprintf("scanned %q", payload))
	fmt.Fprintln(out, color.Gray.Sprint(prompt))
	return nil
}

func sendVoice(ctx context.Context, out io.Writer, v *chatview.View, path, dest string) error {
	audio, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	speech, err := v.Voice(ctx, audio, path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, speech, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(out, color.Green.Sprintf("spoken reply saved to %s (%d bytes)", dest, len(speech)))
	return nil
}

func printMessages(out io.Writer, messages []*models.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(out, color.Gray.Sprint("no messages yet"))
		return
	}
	for _, m := range messages {
		printMessage(out, m)
	}
}

func printMessage(out io.Writer, m *models.Message) {
	stamp := m.Timestamp.Local().Format(time.Kitchen)
	if m.Sender == models.SenderUser {
		fmt.Fprintf(out, "%s %s\n", color.Cyan.Sprintf("[%s] you:", stamp), m.Content)
		return
	}
	fmt.Fprintf(out, "%s %s\n", color.Green.Sprintf("[%s] ai:", stamp), m.Content)
}

// execSpeaker reads text aloud with a local text-to-speech command.
type execSpeaker struct {
	name string
	args []string
}

func (s execSpeaker) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), s.args...), text)
	return exec.CommandContext(ctx, s.name, args...).Run()
}
