package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsaffron/chat-llm/internal/chat"
	"github.com/samsaffron/chat-llm/internal/config"
)

var (
	chatModel    string
	chatNoStream bool
)

// chatHelp doubles as the /help text so the in-session commands stay in
// sync with the command's long help.
const chatHelp = `Start an interactive chat session in the terminal.

Responses stream token by token unless --no-stream is set.

Slash commands:
  /new              - Start a new conversation
  /list             - List conversations (busiest first)
  /switch <n|id>    - Switch to another conversation
  /delete [n|id]    - Delete a conversation (current if omitted)
  /model [name]     - Show or change the model
  /stream           - Toggle streaming
  /help             - Show help
  /quit             - Exit chat`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  chatHelp,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model to use (overrides default_model)")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Wait for complete responses instead of streaming")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if chatModel != "" {
		if _, err := cfg.Resolve(chatModel); err != nil {
			return err
		}
	}

	store := chat.NewStore(cfg.DefaultModel, cfg.SystemPrompt)
	coord := chat.NewCoordinator(store, cfg, nil)
	if chatModel != "" {
		store.Current().SetModel(chatModel)
	}

	repl := &chatREPL{
		cmd:       cmd,
		cfg:       cfg,
		store:     store,
		coord:     coord,
		streaming: !chatNoStream,
		tty:       term.IsTerminal(int(os.Stdin.Fd())),
	}
	return repl.run()
}

type chatREPL struct {
	cmd       *cobra.Command
	cfg       *config.Config
	store     *chat.Store
	coord     *chat.Coordinator
	streaming bool
	tty       bool
}

func (r *chatREPL) run() error {
	if r.tty {
		fmt.Printf("Chatting with %s. Type /help for commands, /quit to exit.\n", r.store.Current().Model())
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if r.tty {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.handleCommand(line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		r.sendMessage(line)
	}
}

func (r *chatREPL) handleCommand(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Println(chatHelp)
	case "/new":
		sess := r.store.Create()
		fmt.Printf("Started %q\n", sess.Title())
	case "/list":
		for i, info := range r.store.List() {
			marker := " "
			if info.Active {
				marker = "*"
			}
			fmt.Printf("%s %2d. %s  (%s)\n", marker, i+1, info.Title, info.ID)
		}
	case "/switch":
		if len(rest) == 0 {
			return false, fmt.Errorf("usage: /switch <n|id>")
		}
		id, err := r.resolveSessionArg(rest[0])
		if err != nil {
			return false, err
		}
		transcript, model, err := r.store.LoadForDisplay(id)
		if err != nil {
			return false, err
		}
		fmt.Printf("Switched to %q (model %s)\n", r.store.Current().Title(), model)
		printTranscript(os.Stdout, transcript)
	case "/delete":
		id := r.store.Current().ID
		if len(rest) > 0 {
			resolved, err := r.resolveSessionArg(rest[0])
			if err != nil {
				return false, err
			}
			id = resolved
		}
		r.store.Delete(id)
		fmt.Printf("Deleted. Current conversation is now %q\n", r.store.Current().Title())
	case "/model":
		if len(rest) == 0 {
			fmt.Printf("Current model: %s\nConfigured: %s\n",
				r.store.Current().Model(), strings.Join(r.cfg.ModelNames(), ", "))
			return false, nil
		}
		if _, err := r.cfg.Resolve(rest[0]); err != nil {
			return false, err
		}
		r.store.Current().SetModel(rest[0])
		fmt.Printf("Model set to %s\n", rest[0])
	case "/stream":
		r.streaming = !r.streaming
		if r.streaming {
			fmt.Println("Streaming on")
		} else {
			fmt.Println("Streaming off")
		}
	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
	return false, nil
}

// resolveSessionArg accepts either a 1-based index into /list output or a
// session id.
func (r *chatREPL) resolveSessionArg(arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		infos := r.store.List()
		if n < 1 || n > len(infos) {
			return "", fmt.Errorf("no conversation numbered %d", n)
		}
		return infos[n-1].ID, nil
	}
	if _, err := r.store.Get(arg); err != nil {
		return "", err
	}
	return arg, nil
}

func (r *chatREPL) sendMessage(text string) {
	reply, err := r.coord.Submit(r.cmd.Context(), chat.TurnRequest{
		Text:   text,
		Stream: r.streaming,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}

	if reply.Result != nil {
		tr := reply.Result.Transcript
		if len(tr) > 0 {
			fmt.Println(tr[len(tr)-1].Content)
		}
		return
	}

	stream := reply.Stream
	defer stream.Close()
	for {
		res, err := stream.Recv()
		if err == io.EOF {
			fmt.Println()
			return
		}
		if err != nil {
			fmt.Println()
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return
		}
		fmt.Print(res.Delta)
	}
}

func printTranscript(w io.Writer, transcript []chat.DisplayMessage) {
	for _, msg := range transcript {
		fmt.Fprintf(w, "%s: %s\n", msg.Role, msg.Content)
	}
}
