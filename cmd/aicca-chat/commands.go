package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	cmdChat    = "chat"
	cmdUpload  = "/upload"
	cmdAnalyze = "/analyze"
	cmdTool    = "/tool"
	cmdSelect  = "/select"
	cmdPing    = "/ping"
	cmdReset   = "/reset"
	cmdInfo    = "/info"
	cmdTools   = "/tools"
	cmdResults = "/results"
	cmdLogs    = "/logs"
	cmdHelp    = "/help"
	cmdQuit    = "/quit"
)

var errEmptyLine = errors.New("empty line")

type command struct {
	Name  string
	Text  string
	Args  []string
	JSON  map[string]interface{}
	Limit int
}

// parseLine turns one line of input into a command. Lines that do not start
// with a slash are chat messages.
func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errEmptyLine
	}
	if !strings.HasPrefix(line, "/") {
		return command{Name: cmdChat, Text: line}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	cmd := command{Name: strings.ToLower(name)}

	switch cmd.Name {
	case cmdUpload, cmdSelect:
		cmd.Args = strings.Fields(rest)
		if len(cmd.Args) == 0 {
			return command{}, fmt.Errorf("usage: %s <file>...", cmd.Name)
		}
	case cmdAnalyze:
		if rest == "" {
			return command{}, fmt.Errorf("usage: /analyze <text or url>")
		}
		cmd.Text = rest
	case cmdTool:
		toolName, rawArgs, _ := strings.Cut(rest, " ")
		if toolName == "" {
			return command{}, fmt.Errorf("usage: /tool <name> [json-args]")
		}
		cmd.Text = toolName
		cmd.JSON = map[string]interface{}{}
		if rawArgs = strings.TrimSpace(rawArgs); rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &cmd.JSON); err != nil {
				return command{}, fmt.Errorf("tool args must be a JSON object: %w", err)
			}
		}
	case cmdLogs:
		cmd.Limit = 20
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil || n <= 0 {
				return command{}, fmt.Errorf("usage: /logs [count]")
			}
			cmd.Limit = n
		}
	case cmdPing, cmdReset, cmdInfo, cmdTools, cmdResults, cmdHelp, cmdQuit:
	default:
		return command{}, fmt.Errorf("unknown command %s, try /help", cmd.Name)
	}
	return cmd, nil
}

// sourceTypeFor guesses the analyze source type of free text.
func sourceTypeFor(text string) string {
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return "url"
	}
	return "text"
}

const helpText = `Commands:
  <text>                    chat with the agent
  /upload <path>...         upload files (concurrently)
  /select <name>...         mark files as selected for analysis
  /analyze <text or url>    request a credibility analysis
  /tool <name> [json-args]  execute a tool directly
  /results                  normalized results per file
  /info, /tools             backend capabilities
  /ping, /reset, /logs [n], /quit`
