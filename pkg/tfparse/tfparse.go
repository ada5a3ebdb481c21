// Package tfparse statically analyzes Terraform source files.
//
// The engine only needs two facts from a directory's HCL: which local module
// directories its configuration references, and whether a remote state
// backend is declared. Files are parsed with a partial schema so unrelated
// blocks and unparseable expressions elsewhere in the file are ignored.
package tfparse

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "module", LabelNames: []string{"name"}},
		{Type: "terraform"},
	},
}

var moduleSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "source"},
	},
}

var terraformSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "backend", LabelNames: []string{"type"}},
		{Type: "cloud"},
	},
}

// SourceFiles returns the Terraform source files directly in dir, sorted.
// File symlinks are included; subdirectories are not descended into.
func SourceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tf") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ModuleSources returns the local module directories referenced by the
// configuration in dir, resolved to absolute paths and sorted. Registry and
// remote sources are not local dependencies and are skipped.
func ModuleSources(dir string) ([]string, error) {
	files, err := SourceFiles(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	parser := hclparse.NewParser()
	for _, path := range files {
		content, err := parseFile(parser, path)
		if err != nil {
			return nil, err
		}
		for _, block := range content.Blocks.OfType("module") {
			source, ok := moduleSource(block)
			if !ok || !isLocalSource(source) {
				continue
			}
			resolved := filepath.Clean(filepath.Join(dir, source))
			seen[resolved] = true
		}
	}

	sources := make([]string, 0, len(seen))
	for source := range seen {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources, nil
}

// HasBackend reports whether the configuration in dir declares a remote
/// state backend: a terraform block with a backend or cloud block. A "local"
// backend declaration does not count as remote state.
func HasBackend(dir string) (bool, error) {
	files, err := SourceFiles(dir)
	if err != nil {
		return false, err
	}

	parser := hclparse.NewParser()
	for _, path := range files {
		content, err := parseFile(parser, path)
		if err != nil {
			return false, err
		}
		for _, block := range content.Blocks.OfType("terraform") {
			tfContent, _, diags := block.Body.PartialContent(terraformSchema)
			if diags.HasErrors() {
				continue
			}
			if len(tfContent.Blocks.OfType("cloud")) > 0 {
				return true, nil
			}
			for _, backend := range tfContent.Blocks.OfType("backend") {
				if len(backend.Labels) > 0 && backend.Labels[0] != "local" {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// parseFile parses one .tf file and extracts the blocks the engine cares
// about, tolerating unknown blocks and attributes.
func parseFile(parser *hclparse.Parser, path string) (*hcl.BodyContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.ParseError(path, diags)
	}
	content, _, _ := file.Body.PartialContent(rootSchema)
	return content, nil
}

// moduleSource extracts the source attribute from a module block. Sources
// are required to be literal strings by Terraform itself, so evaluation
// needs no variables.
func moduleSource(block *hcl.Block) (string, bool) {
	content, _, diags := block.Body.PartialContent(moduleSchema)
	if diags.HasErrors() {
		return "", false
	}
	attr, ok := content.Attributes["source"]
	if !ok {
		return "", false
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() || val.Type() != cty.String || val.IsNull() {
		return "", false
	}
	return val.AsString(), true
}

// isLocalSource reports whether a module source is a local filesystem path
// rather than a registry, git, or archive address.
func isLocalSource(source string) bool {
	return strings.HasPrefix(source, "./") || strings.HasPrefix(source, "../")
}
