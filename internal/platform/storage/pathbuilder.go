package storage

import (
	"fmt"
	"strings"
)

// AssetPurpose selects the storage layout for a ticket asset.
type AssetPurpose string

const (
	// PurposeTicketImage is the AI-generated preview artwork.
	PurposeTicketImage AssetPurpose = "ticket-image"
	// PurposeCustomBackground is a user-supplied background image.
	PurposeCustomBackground AssetPurpose = "custom-background"
	// PurposeHiResPrint is the paid, print-quality render.
	PurposeHiResPrint AssetPurpose = "hires-print"
)

// PathParams identify the asset being placed.
type PathParams struct {
	TicketID string
	RunID    string
	UploadID string
	FileName string
}

// BuildObjectPath composes the bucket object key for a ticket asset. Every
// segment is validated against traversal so ids lifted from requests cannot
// escape the ticket's prefix.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	ticketID, err := pathSegment("ticketID", params.TicketID)
	if err != nil {
		return "", err
	}

	switch purpose {
	case PurposeTicketImage:
		runID, err := pathSegment("runID", params.RunID)
		if err != nil {
			return "", err
		}
		fileName, err := pathSegment("fileName", params.FileName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("assets/tickets/%s/images/%s/%s", ticketID, runID, fileName), nil

	case PurposeCustomBackground:
		uploadID, err := pathSegment("uploadID", params.UploadID)
		if err != nil {
			return "", err
		}
		fileName, err := pathSegment("fileName", params.FileName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("assets/tickets/%s/backgrounds/%s/%s", ticketID, uploadID, fileName), nil

	case PurposeHiResPrint:
		name := strings.TrimSpace(params.FileName)
		if name == "" {
			name = "ticket-print.png"
		}
		fileName, err := pathSegment("fileName", name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("assets/tickets/%s/print/%s", ticketID, fileName), nil

	default:
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
}

func pathSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
