package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
)

// CheckCategory checks that a category root is a readable directory.
// Polling a missing root fails, so this is required.
func (c *Checker) CheckCategory(name string, cat config.CategoryConfig) CheckResult {
	result := CheckResult{Name: "category:" + name, Required: true}

	info, err := os.Stat(cat.Path)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("root not accessible: %v", err)
		result.Details = "Create the directory or fix categories." + name + ".path"
		return result
	case !info.IsDir():
		result.Status = StatusFail
		result.Message = cat.Path + " is not a directory"
		return result
	}

	if _, err := os.ReadDir(cat.Path); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("root not readable: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", cat.Path, cat.Pattern)
	return result
}

// CheckEmbedder reports whether the embedding provider answers. Search
// falls back to lexical ranking without one, so it never fails hard.
func (c *Checker) CheckEmbedder(ctx context.Context, e embed.Embedder) CheckResult {
	result := CheckResult{Name: "embedder", Required: false}

	if e == nil {
		result.Status = StatusWarn
		result.Message = "disabled (lexical search only)"
		return result
	}
	if !e.Available(ctx) {
		result.Status = StatusWarn
		result.Message = e.ModelName() + " unavailable"
		result.Details = "Start the provider or set embedding.provider to static"
		return result
	}

	result.Status = StatusPass
	result.Message = e.ModelName()
	return result
}
