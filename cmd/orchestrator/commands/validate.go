package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edgeorch/orchestrator/pkg/configstore"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate recipe files and the merged configuration tree",
		Long: `Check every recipe file under --recipes-dir for the required name/
version/lifecycle keys, and load --config-dir through the same schema
validation the running daemon applies to every services.<name> subtree.
Every check runs and every failure is logged; exits 1 if any failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context())
		},
	}
	return cmd
}

func runValidate(ctx context.Context) error {
	invalid := 0

	entries, err := os.ReadDir(recipesDir)
	if err != nil {
		return fmt.Errorf("read recipes dir %s: %w", recipesDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(recipesDir, entry.Name())
		if err := validateRecipeFile(path); err != nil {
			log.Error().Str("file", path).Err(err).Msg("recipe validation failed")
			invalid++
			continue
		}
		log.Info().Str("file", path).Msg("recipe ok")
	}

	if _, err := configstore.New(configDir); err != nil {
		log.Error().Str("dir", configDir).Err(err).Msg("config validation failed")
		invalid++
	} else {
		log.Info().Str("dir", configDir).Msg("config ok")
	}

	if invalid > 0 {
		return fmt.Errorf("%d validation error(s)", invalid)
	}
	return nil
}

func validateRecipeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("yaml syntax: %w", err)
	}
	for _, key := range []string{"name", "version", "lifecycle"} {
		if _, ok := doc[key]; !ok {
			return fmt.Errorf("missing required key %q", key)
		}
	}
	return nil
}
