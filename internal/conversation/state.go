package conversation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	stateDir  = ".orderchat"
	stateFile = "current_chat"
)

// StateFilePath returns the path to the current-chat state file,
// creating ~/.orderchat if it does not exist.
func StateFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	stateDirPath := filepath.Join(homeDir, stateDir)
	if err := os.MkdirAll(stateDirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}

	return filepath.Join(stateDirPath, stateFile), nil
}

// LoadCurrentChatID reads the chat id selected in a previous run.
// Returns ("", nil) when no current chat is recorded; that is not an
// error.
func LoadCurrentChatID() (string, error) {
	filePath, err := StateFilePath()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read state file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// SaveCurrentChatID records the chat id to restore on the next run.
func SaveCurrentChatID(chatID string) error {
	filePath, err := StateFilePath()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, []byte(chatID), 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// ClearCurrentChatID removes the state file. Idempotent: clearing
// when no current chat exists is not an error.
func ClearCurrentChatID() error {
	filePath, err := StateFilePath()
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
