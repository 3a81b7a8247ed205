package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pbinitiative/zenorchestrator/internal/config"
	"github.com/pbinitiative/zenorchestrator/internal/deploy"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/spf13/cobra"
)

func newDeployCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "deploy <file>...",
		Short: "Deploy process definition files",
		Long: `Deploy process definition files either to a running server (--server) or
straight into the configured SQLite storage.`,
		Example: `  # Deploy through the REST API of a running server
  zenorch deploy --server http://localhost:8080 order.yaml

  # Deploy into the SQLite database of the configuration
  zenorch deploy -c conf.yaml order.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server != "" {
				return deployRemote(cmd, server, args)
			}
			return deployLocal(cmd, args)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "base URL of a running server")
	return cmd
}

func deployLocal(cmd *cobra.Command, files []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	if conf.Storage.Driver != config.StorageSqlite {
		return fmt.Errorf("deploying without --server requires the %s storage driver, got %s", config.StorageSqlite, conf.Storage.Driver)
	}
	store, err := openStorage(cmd.Context(), conf)
	if err != nil {
		return err
	}
	defer store.close()

	engine := bpmn.NewEngine(bpmn.EngineWithStorage(store.storage), bpmn.EngineWithConfig(conf.EngineConfig()), bpmn.EngineWithLogger(engineLogger(conf)))
	defer engine.Stop()

	var errJoin error
	for _, file := range files {
		definitions, err := deploy.File(cmd.Context(), engine, file)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		printDeployed(cmd, file, definitions)
	}
	return errJoin
}

func deployRemote(cmd *cobra.Command, server string, files []string) error {
	var errJoin error
	for _, file := range files {
		definitions, err := postDefinitions(cmd, server, file)
		if err != nil {
			errJoin = errors.Join(errJoin, fmt.Errorf("failed to deploy %s: %w", file, err))
			continue
		}
		printDeployed(cmd, file, definitions)
	}
	return errJoin
}

func postDefinitions(cmd *cobra.Command, server string, file string) ([]model.ProcessDefinition, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	target := strings.TrimSuffix(server, "/") + "/v1/definitions?deployment=" + url.QueryEscape(filepath.Base(file))
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var definitions []model.ProcessDefinition
	if err := json.Unmarshal(body, &definitions); err != nil {
		return nil, err
	}
	return definitions, nil
}

func printDeployed(cmd *cobra.Command, file string, definitions []model.ProcessDefinition) {
	for _, d := range definitions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: deployed %s version %d (%s)\n", file, d.Key, d.Version, d.Id)
	}
}
