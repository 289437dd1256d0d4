package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/llm"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Send an ad-hoc question through a fallback model list",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ask(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringP("capability", "c", string(llm.CapabilityChat), "chat, completion or vision")
	askCmd.Flags().StringP("system", "s", "", "system instruction for chat and vision")
	askCmd.Flags().StringSlice("models", nil, "override the model list, in priority order")
	askCmd.Flags().StringSlice("image", nil, "image file or http(s) url attached to a vision question")
}

func ask(cmd *cobra.Command, question string) {
	ctx := context.Background()
	e := newEnv()
	defer e.close()
	e.requireAPIKey()

	capabilityName, _ := cmd.Flags().GetString("capability")
	system, _ := cmd.Flags().GetString("system")
	override, _ := cmd.Flags().GetStringSlice("models")
	imageRefs, _ := cmd.Flags().GetStringSlice("image")

	capability, err := llm.ParseCapability(capabilityName)
	if err != nil {
		e.fatal("parsing capability", zap.Error(err))
	}

	images, err := loadImages(imageRefs)
	if err != nil {
		e.fatal("loading images", zap.Error(err))
	}

	client, err := e.client(ctx, capability, override)
	if err != nil {
		e.fatal("creating client", zap.Error(err))
	}

	req := llm.Request{Images: images}
	if capability == llm.CapabilityCompletion {
		req.Prompt = question
	} else {
		if system != "" {
			req.Messages = append(req.Messages, llm.SystemMessage(system))
		}
		req.Messages = append(req.Messages, llm.UserMessage(question))
	}

	res, err := client.Ask(ctx, req)
	if err != nil {
		e.fatal("asking", zap.Error(err), zap.Bool("models_exhausted", llm.IsExhausted(err)))
	}

	meta := client.Metadata()
	e.logger.Info("answered",
		zap.String("ai_model", res.Model.String()),
		zap.Int("context_window", meta.ContextWindow),
		zap.Int("max_output_tokens", meta.MaxOutputTokens),
	)

	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
}

func loadImages(refs []string) ([]llm.Image, error) {
	images := make([]llm.Image, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			images = append(images, llm.Image{URL: ref})
			continue
		}

		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		mimeType := "image/png"
		switch strings.ToLower(filepath.Ext(ref)) {
		case ".jpg", ".jpeg":
			mimeType = "image/jpeg"
		case ".webp":
			mimeType = "image/webp"
		case ".gif":
			mimeType = "image/gif"
		}
		images = append(images, llm.Image{Data: data, MIMEType: mimeType})
	}
	return images, nil
}
