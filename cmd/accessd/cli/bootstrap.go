package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-access/internal/app"
	"github.com/odyssey-erp/odyssey-access/internal/session"
)

// Bootstrapper seeds the first administrator.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, in app.BootstrapInput) (session.Result, error)
}

// BootstrapOptions defines the flags of the bootstrap command.
type BootstrapOptions struct {
	Email         string
	StructureName string
	StructureType string
	Stdout        io.Writer
	Stderr        io.Writer
}

type bootstrapOutput struct {
	UserID        int64                `json:"userId"`
	AssociationID string               `json:"associationId"`
	StructureID   int64                `json:"structureId"`
	Credentials   *session.Credentials `json:"credentials,omitempty"`
}

// BootstrapCommand runs the bootstrap and prints the admin credentials as JSON.
func BootstrapCommand(ctx context.Context, b Bootstrapper, opts BootstrapOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Email) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "bootstrap: --email is required")
		return 1
	}
	res, err := b.Bootstrap(ctx, app.BootstrapInput{
		Email:         opts.Email,
		StructureName: opts.StructureName,
		StructureType: opts.StructureType,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "bootstrap: %v\n", err)
		return 1
	}
	out := bootstrapOutput{
		UserID:        res.Association.UserID,
		AssociationID: res.Association.ID,
		StructureID:   res.Association.StructureID,
		Credentials:   res.Credentials,
	}
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "bootstrap: encode json: %v\n", err)
		return 1
	}
	return 0
}
