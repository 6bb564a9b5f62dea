package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/simple-molecule/pkg/simplemolecule"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/api"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/config"
)

// cliIdentifier is used when a command loads a file without an identifier.
const cliIdentifier = "cli_node_0"

// ServiceClient runs store and resolver operations in-process
type ServiceClient struct {
	stack   *config.Stack
	verbose bool
}

// NewServiceClient creates a new in-process client
func NewServiceClient(stack *config.Stack, verbose bool) *ServiceClient {
	return &ServiceClient{
		stack:   stack,
		verbose: verbose,
	}
}

// Close drains pending notifications
func (c *ServiceClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.stack.Emitter.Close(ctx)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return api.DecodeText(data)
}

// Inspect detects the format of a file and computes its statistics. Files
// with an unknown extension are sniffed.
func (c *ServiceClient) Inspect(path string) (*InspectResult, error) {
	content, err := readText(path)
	if err != nil {
		return nil, err
	}

	result := &InspectResult{
		Path:   path,
		Format: simplemolecule.DetectFormat(path),
		Kind:   simplemolecule.Classify(content),
	}
	if result.Format == simplemolecule.FormatUnknown {
		analysis := simplemolecule.AnalyzeContent(content)
		result.Format, result.Stats = analysis.Format, analysis.Stats
		result.Sniffed = true
	} else {
		result.Stats = simplemolecule.ComputeStats(content, result.Format)
	}
	result.FormatName = result.Format.Name()
	return result, nil
}

// Resolve runs the resolver for input. Files named in preload are stored first
// under identifiers of the form preload_node_N so cache tiers can be tried.
func (c *ServiceClient) Resolve(ctx context.Context, input, identifier string, skipFallback bool, preload []string) (*simplemolecule.Resolution, error) {
	for i, path := range preload {
		content, err := readText(path)
		if err != nil {
			return nil, err
		}
		id := fmt.Sprintf("preload_node_%d", i)
		if _, err := c.stack.Store.Store(ctx, simplemolecule.StoreRequest{
			Identifier: id,
			Filename:   filepath.Base(path),
			Content:    content,
		}); err != nil {
			return nil, fmt.Errorf("failed to preload %s: %w", path, err)
		}
		if c.verbose {
			fmt.Fprintf(os.Stderr, "Preloaded %s as %s\n", path, id)
		}
	}

	return c.stack.Resolver.Resolve(ctx, simplemolecule.ResolveRequest{
		Input:        input,
		Identifier:   identifier,
		SkipFallback: skipFallback,
	}), nil
}

// Edit loads a file into the store and applies one edit to it
func (c *ServiceClient) Edit(ctx context.Context, path string, editType simplemolecule.EditType) (*EditResult, error) {
	content, err := readText(path)
	if err != nil {
		return nil, err
	}

	before, err := c.stack.Store.Store(ctx, simplemolecule.StoreRequest{
		Identifier: cliIdentifier,
		Filename:   filepath.Base(path),
		Content:    content,
	})
	if err != nil {
		return nil, err
	}

	after, err := c.stack.Store.Edit(ctx, cliIdentifier, simplemolecule.EditRequest{Type: editType})
	if err != nil {
		return nil, err
	}

	result := &EditResult{
		Path:       path,
		Identifier: cliIdentifier,
		Before:     before.Stats,
		After:      after.Stats,
		Content:    after.Content,
		History:    after.EditHistory,
	}
	if n := len(after.EditHistory); n > 0 {
		result.Description = after.EditHistory[n-1].Description
	}
	return result, nil
}
