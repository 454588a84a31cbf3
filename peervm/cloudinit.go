package peervm

import (
	"fmt"
	"os"
	"strings"

	"github.com/kdomanski/iso9660"
)

// CloudInit carries the NoCloud documents handed to the guest, typically a
// network-config assigning the peer its address and a user-data starting a
// responder.
type CloudInit struct {
	Meta    string
	User    string
	Vendor  string
	Network string
}

// WriteIso writes the documents as a cidata iso9660 volume at path.
func (c *CloudInit) WriteIso(path string) error {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return fmt.Errorf("creating iso writer: %w", err)
	}

	defer writer.Cleanup()

	err = writer.AddFile(strings.NewReader(c.User), "user-data")
	if err != nil {
		return fmt.Errorf("adding user-data: %w", err)
	}

	err = writer.AddFile(strings.NewReader(c.Meta), "meta-data")
	if err != nil {
		return fmt.Errorf("adding meta-data: %w", err)
	}

	if c.Vendor != "" {
		err = writer.AddFile(strings.NewReader(c.Vendor), "vendor-data")
		if err != nil {
			return fmt.Errorf("adding vendor-data: %w", err)
		}
	}

	if c.Network != "" {
		err = writer.AddFile(strings.NewReader(c.Network), "network-config")
		if err != nil {
			return fmt.Errorf("adding network-config: %w", err)
		}
	}

	isoFile, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("creating iso file: %w", err)
	}

	//goland:noinspection GoUnhandledErrorResult
	defer isoFile.Close()

	err = writer.WriteTo(isoFile, "cidata")
	if err != nil {
		return fmt.Errorf("writing iso file: %w", err)
	}

	return nil
}
