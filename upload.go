package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/anduleh/save-to-google-photos/internal/trigger"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <url>",
		Short: "Upload one image or video URL to Google Photos",
		Long: "Fetches the resource at <url> (http, https, data: or, when allowed,\n" +
			"file://) and creates a media item from it, exactly as a context-menu\n" +
			"click would.",
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}

	cmd.Flags().String("description", "", "media item description (overrides config)")
	cmd.Flags().String("album", "", "album id to add the item to (overrides config)")
	cmd.Flags().String("page-url", "", "page the resource was found on, recorded in history")

	return cmd
}

// uploadOutput is the JSON schema for `upload --json`.
type uploadOutput struct {
	ID          string `json:"id"`
	SourceURL   string `json:"source_url"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	MediaItemID string `json:"media_item_id"`
	ProductURL  string `json:"product_url,omitempty"`
}

func runUpload(cmd *cobra.Command, args []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	pageURL, err := cmd.Flags().GetString("page-url")
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	s, err := newSession(ctx, cc, cc.Cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := uploadOne(ctx, s.handler, trigger.Event{
		MenuItemID: trigger.MenuItemID,
		SrcURL:     args[0],
		PageURL:    pageURL,
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	printUploadText(os.Stdout, out)

	return nil
}

// uploadOne runs ev through the handler and summarizes the created item.
func uploadOne(ctx context.Context, h *trigger.Handler, ev trigger.Event) (*uploadOutput, error) {
	outcome, err := h.Handle(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	out := &uploadOutput{
		ID:        outcome.InvocationID,
		SourceURL: trigger.DisplaySource(ev.SrcURL),
	}

	if res := outcome.Resource; res != nil {
		out.MimeType = res.MimeType
		out.SizeBytes = res.Size()
	}

	if item := outcome.MediaItem(); item != nil {
		out.MediaItemID = item.ID
		out.ProductURL = item.ProductURL
	}

	return out, nil
}

func printUploadText(w io.Writer, out *uploadOutput) {
	fmt.Fprintf(w, "Uploaded %s (%s, %s)\n", truncate(out.SourceURL, 80), out.MimeType, formatSize(out.SizeBytes))
	fmt.Fprintf(w, "Media item: %s\n", out.MediaItemID)

	if out.ProductURL != "" {
		fmt.Fprintf(w, "View:       %s\n", out.ProductURL)
	}
}
