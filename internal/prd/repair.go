package prd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/forgeworks/prdpilot/internal/agent"
)

// Repair makes one bounded attempt to fix a malformed task-store file by
// delegating the syntax repair to the agent. The original content is
// backed up first; if the repaired content still does not parse, the
// backup is restored and the error is fatal. Data is never silently
// discarded.
func Repair(ctx context.Context, eng agent.Engine, path string, display *agent.Display) error {
	original, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read task store for repair: %w", err)
	}

	backupPath := path + ".bak"
	if err := os.WriteFile(backupPath, original, 0644); err != nil {
		return fmt.Errorf("failed to back up task store: %w", err)
	}

	res := eng.Execute(ctx, buildRepairPrompt(string(original)), display)
	if res.Err != nil {
		return fmt.Errorf("repair agent failed: %w", res.Err)
	}

	repaired, err := extractJSON(res.Output)
	if err != nil {
		return restoreAndFail(path, backupPath, err)
	}

	var check PRD
	if err := json.Unmarshal([]byte(repaired), &check); err != nil {
		return restoreAndFail(path, backupPath, fmt.Errorf("repaired content still malformed: %w", err))
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(repaired), 0644); err != nil {
		return restoreAndFail(path, backupPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return restoreAndFail(path, backupPath, err)
	}

	// The repaired content is in place; the backup has served its purpose.
	_ = os.Remove(backupPath)

	return nil
}

func restoreAndFail(path, backupPath string, cause error) error {
	if restoreErr := os.Rename(backupPath, path); restoreErr != nil {
		return fmt.Errorf("task store repair failed (%v) and backup restore failed: %w", cause, restoreErr)
	}
	return fmt.Errorf("task store repair failed, backup restored: %w", cause)
}

func buildRepairPrompt(content string) string {
	return fmt.Sprintf(`The following JSON file is malformed. Fix ONLY the syntax so it parses;
do not add, remove, or reword any data.

<file>
%s
</file>

Respond with the corrected JSON object and nothing else.`, content)
}

// extractJSON pulls the outermost JSON object out of free-form agent
// output, tolerating markdown code fences around it.
func extractJSON(response string) (string, error) {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		var jsonLines []string
		inBlock := false
		for _, line := range strings.Split(response, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		if len(jsonLines) > 0 {
			response = strings.Join(jsonLines, "\n")
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in repair response")
	}
	return response[start : end+1], nil
}
