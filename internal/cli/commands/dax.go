package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/assistant"
	"github.com/pbip-tools/tentacles/internal/project"
)

// NewDaxCommand creates the dax command.
func NewDaxCommand() *cobra.Command {
	var saveAs string
	cmd := &cobra.Command{
		Use:   "dax [question]",
		Short: "Ask the DAX assistant",
		Long: `Send a natural-language question to the configured assistant bot and
print the DAX query it answers with. The prompt includes the model's
table, column, and measure names so generated queries reference real
identifiers. Without a question an interactive session starts.

The assistant endpoint is configured under "assistant:" in
tentacles.yaml.`,
		Example: `  tentacles dax "total sales by year"
  tentacles dax --save-as "Sales by Year" "total sales by year"
  tentacles dax`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}

			a := cmdCtx.Cfg.GetAssistant()
			if a.PageURL == "" {
				return fmt.Errorf("no assistant page URL configured; set assistant.page_url in tentacles.yaml")
			}
			client, err := assistant.New(assistant.Config{
				PageURL:            a.PageURL,
				NonceRefreshAction: a.NonceRefreshAction,
				Timeout:            time.Duration(a.TimeoutSeconds) * time.Second,
			}, cmdCtx.Logger)
			if err != nil {
				return err
			}
			if err := client.Connect(cmd.Context()); err != nil {
				return err
			}

			if len(args) == 1 {
				reply, err := askDax(cmd, client, p, args[0])
				if err != nil {
					return err
				}
				cmdCtx.Renderer.Println(reply)
				if saveAs != "" {
					return saveReplyAsQuery(cmdCtx, p, saveAs, reply)
				}
				return nil
			}
			return runDaxREPL(cmd, cmdCtx, client, p)
		},
	}
	cmd.Flags().StringVar(&saveAs, "save-as", "", "Store the reply as a named query tab")
	return cmd
}

func askDax(cmd *cobra.Command, client *assistant.Client, p *project.Project, question string) (string, error) {
	prompt := assistant.BuildPrompt(question, p.Tables)
	reply, err := client.Generate(cmd.Context(), prompt)
	if err != nil {
		return "", err
	}
	return assistant.CleanReply(reply), nil
}

func saveReplyAsQuery(cmdCtx *CommandContext, p *project.Project, name, text string) error {
	set, err := p.DAXQueries()
	if err != nil {
		return err
	}
	q, err := set.Add(name)
	if err != nil {
		return err
	}
	if err := set.SetText(q.Name, text); err != nil {
		return err
	}
	return saveQueries(cmdCtx, set)
}

func runDaxREPL(cmd *cobra.Command, cmdCtx *CommandContext, client *assistant.Client, p *project.Project) error {
	historyFile := filepath.Join(filepath.Dir(p.Paths.PbipFile), ".tentacles_dax_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dax> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "DAX assistant. Ask a question, .save <name> to store the last reply, .quit to exit")
	_, _ = fmt.Fprintln(out)

	var lastReply string
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if handleDaxDotCommand(cmdCtx, p, line, lastReply) {
				if line == ".quit" || line == ".exit" {
					break
				}
				continue
			}
		}

		reply, err := askDax(cmd, client, p, line)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		lastReply = reply
		_, _ = fmt.Fprintln(out, reply)
		_, _ = fmt.Fprintln(out)
	}
	return nil
}

// handleDaxDotCommand reports whether the line was a dot-command.
func handleDaxDotCommand(cmdCtx *CommandContext, p *project.Project, line, lastReply string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".quit", ".exit":
		return true
	case ".save":
		if len(fields) < 2 {
			cmdCtx.Renderer.Error("usage: .save <name>")
			return true
		}
		if lastReply == "" {
			cmdCtx.Renderer.Error("nothing to save yet")
			return true
		}
		name := strings.Join(fields[1:], " ")
		if err := saveReplyAsQuery(cmdCtx, p, name, lastReply); err != nil {
			cmdCtx.Renderer.Error("Error: " + err.Error())
		}
		return true
	default:
		return false
	}
}
