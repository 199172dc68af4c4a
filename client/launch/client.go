package launch

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xADE/ade-launchd/parser"
)

const protoVer = "TXT01" // cmdlist protocol, text format, v01

// Application is a catalog entry as listed by the daemon
type Application struct {
	ID   string
	Kind string
	Name string
	Path string
}

// RecentPath is a frequently used directory with its current score
type RecentPath struct {
	Score float64
	Path  string
}

// QueryResult is the routed answer to free-form input. Only the field
// matching Intent is set.
type QueryResult struct {
	Intent  string
	Apps    []Application
	Paths   []string
	Command string
}

// Status describes the daemon's catalog
type Status struct {
	Entries    int
	BuiltAt    time.Time
	Schema     string
	Rebuilding bool
}

// Response is a decoded server reply
type Response struct {
	Attrs map[string]string
	Body  []string
}

// ServerError is an error reply from the daemon
type ServerError struct {
	Cmd  string
	Type string
	Desc string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s: %s (%s)", e.Cmd, e.Type, e.Desc)
}

// Client handles connection to ade-launchd server
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewClient creates a new client and connects to the server
func NewClient() (*Client, error) {
	socketPath, err := getSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}

	c, err := NewClientConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClientConn starts a session on an established connection
func NewClientConn(conn net.Conn) (*Client, error) {
	if _, err := io.WriteString(conn, protoVer); err != nil {
		return nil, fmt.Errorf("failed to send header: %w", err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Do sends one command and reads its reply. Error replies are returned as
// *ServerError.
func (c *Client) Do(name string, args ...parser.Value) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := parser.Encode(c.conn, name, args...); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", name, err)
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if errType, ok := resp.Attrs["error"]; ok {
		return nil, &ServerError{Cmd: resp.Attrs["error-cmd"], Type: errType, Desc: resp.Attrs["desc"]}
	}
	return resp, nil
}

// readResponse reads a header, the attribute block and body-lines lines of body
func readResponse(reader *bufio.Reader) (*Response, error) {
	header := make([]byte, len(protoVer))
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, fmt.Errorf("failed to read response header: %w", err)
	}
	if string(header) != protoVer {
		return nil, fmt.Errorf("unexpected header %q", header)
	}

	resp := &Response{Attrs: make(map[string]string)}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			resp.Attrs[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	n, _ := strconv.Atoi(resp.Attrs["body-lines"])
	for i := 0; i < n; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		resp.Body = append(resp.Body, strings.TrimRight(line, "\r\n"))
	}
	return resp, nil
}

// Classify returns the intent of text: app, path or command
func (c *Client) Classify(text string) (string, error) {
	resp, err := c.Do(parser.CmdClassify, parser.Str(text))
	if err != nil {
		return "", err
	}
	return resp.Attrs["intent"], nil
}

// Search ranks the catalog against query. limit <= 0 uses the daemon default.
func (c *Client) Search(query string, limit int) ([]Application, error) {
	resp, err := c.Do(parser.CmdSearch, withLimit(parser.Str(query), limit)...)
	if err != nil {
		return nil, err
	}
	return parseApps(resp.Body), nil
}

// Query classifies text and returns what the daemon routed it to
func (c *Client) Query(text string, limit int) (*QueryResult, error) {
	resp, err := c.Do(parser.CmdQuery, withLimit(parser.Str(text), limit)...)
	if err != nil {
		return nil, err
	}

	res := &QueryResult{Intent: resp.Attrs["intent"]}
	switch res.Intent {
	case "path":
		res.Paths = resp.Body
	case "command":
		res.Command = strings.Join(resp.Body, " ")
	default:
		res.Apps = parseApps(resp.Body)
	}
	return res, nil
}

// Launched records that the application with id was started
func (c *Client) Launched(id string) (int, error) {
	resp, err := c.Do(parser.CmdLaunched, parser.Str(id))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp.Attrs["use-count"])
}

// Complete lists directories matching input and resets cycling
func (c *Client) Complete(input string) ([]string, error) {
	resp, err := c.Do(parser.CmdComplete, parser.Str(input))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CompleteNext returns the next completion. With an empty input the cursor
// over the last candidate set is advanced.
func (c *Client) CompleteNext(input string) (string, bool, error) {
	return c.cycle(parser.CmdCompleteNext, input)
}

// CompletePrev returns the previous completion
func (c *Client) CompletePrev(input string) (string, bool, error) {
	return c.cycle(parser.CmdCompletePrev, input)
}

func (c *Client) cycle(cmd, input string) (string, bool, error) {
	var args []parser.Value
	if input != "" {
		args = append(args, parser.Str(input))
	}
	resp, err := c.Do(cmd, args...)
	if err != nil {
		return "", false, err
	}
	got, ok := resp.Attrs["completion"]
	return got, ok, nil
}

// Reindex rebuilds the catalog and returns its size
func (c *Client) Reindex() (int, error) {
	resp, err := c.Do(parser.CmdReindex)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp.Attrs["indexed"])
}

// Visit records a use of path and returns its frequency
func (c *Client) Visit(path string) (uint64, error) {
	resp, err := c.Do(parser.CmdVisit, parser.Str(path))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(resp.Attrs["frequency"], 10, 64)
}

// Recent lists the best scoring paths. limit <= 0 uses the daemon default.
func (c *Client) Recent(limit int) ([]RecentPath, error) {
	var args []parser.Value
	if limit > 0 {
		args = append(args, parser.Int(int64(limit)))
	}
	resp, err := c.Do(parser.CmdRecent, args...)
	if err != nil {
		return nil, err
	}

	out := make([]RecentPath, 0, len(resp.Body))
	for _, line := range resp.Body {
		score, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		s, err := strconv.ParseFloat(score, 64)
		if err != nil {
			continue
		}
		out = append(out, RecentPath{Score: s, Path: path})
	}
	return out, nil
}

// Status describes the daemon's catalog
func (c *Client) Status() (*Status, error) {
	resp, err := c.Do(parser.CmdStatus)
	if err != nil {
		return nil, err
	}

	st := &Status{Schema: resp.Attrs["schema"], Rebuilding: resp.Attrs["rebuilding"] == "true"}
	if st.Entries, err = strconv.Atoi(resp.Attrs["entries"]); err != nil {
		return nil, fmt.Errorf("bad entries attribute: %w", err)
	}
	if st.BuiltAt, err = time.Parse(time.RFC3339, resp.Attrs["built-at"]); err != nil {
		return nil, fmt.Errorf("bad built-at attribute: %w", err)
	}
	return st, nil
}

func withLimit(text parser.Value, limit int) []parser.Value {
	if limit > 0 {
		return []parser.Value{text, parser.Int(int64(limit))}
	}
	return []parser.Value{text}
}

func parseApps(lines []string) []Application {
	apps := make([]Application, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, "\t", 4)
		if len(parts) != 4 {
			continue
		}
		apps = append(apps, Application{ID: parts[0], Kind: parts[1], Name: parts[2], Path: parts[3]})
	}
	return apps
}
