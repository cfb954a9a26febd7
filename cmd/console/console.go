package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
	"github.com/KevinKickass/OpenDriveEmulator/internal/mcb"
	"github.com/KevinKickass/OpenDriveEmulator/internal/protolog"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

const defaultWatchCount = 5

// Console handles the interactive command loop.
type Console struct {
	client   *mcb.Client
	timeout  time.Duration
	interval time.Duration
	rl       *readline.Instance
	out      io.Writer
	logger   *zap.Logger
}

func NewConsole(target string, timeout, interval time.Duration, logger *zap.Logger) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mcb> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{timeout: timeout, interval: interval, rl: rl, out: rl.Stdout(), logger: logger}
	if err := c.connect(target); err != nil {
		rl.Close()
		return nil, err
	}
	return c, nil
}

func (c *Console) connect(target string) error {
	client := mcb.NewClient(target, c.timeout)
	if err := client.Connect(); err != nil {
		return err
	}
	if c.client != nil {
		c.client.Close()
	}
	c.client = client
	return nil
}

// Run reads commands until exit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.client.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "read", "r":
		c.cmdRead(ctx, args)
	case "write", "w":
		c.cmdWrite(ctx, args)
	case "watch":
		c.cmdWatch(ctx, args)
	case "target", "t":
		c.cmdTarget(args)
	case "log", "l":
		c.cmdLog(args)
	case "exit", "quit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help')\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  read  <subnode> <address> [type]   read a register (type: u8 s8 u16 s16 u32 s32 float str)
  write <subnode> <address> <value>  send a write request
  watch <subnode> <address> [type] [count]
                                     poll a register (default 5 samples)
  target [address]                   show or change the emulator address
  log   <file> [subnode]             dump a protocol capture file
  help                               show this help
  exit                               leave the console`)
}

func (c *Console) cmdRead(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: read <subnode> <address> [type]")
		return
	}
	subnode, address, ok := c.parseTarget(args[0], args[1])
	if !ok {
		return
	}
	dt := types.DataTypeUnknown
	if len(args) > 2 {
		dt = types.ParseDataType(args[2])
		if !dt.Known() {
			fmt.Fprintf(c.out, "Unknown type: %s\n", args[2])
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Read(ctx, subnode, address)
	if c.reportError(err) {
		return
	}
	fmt.Fprintf(c.out, "%d/%s = %s\n", subnode, dictionary.FormatAddress(address), FormatFrame(resp, dt))
}

func (c *Console) cmdWrite(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: write <subnode> <address> <value>")
		return
	}
	subnode, address, ok := c.parseTarget(args[0], args[1])
	if !ok {
		return
	}
	data, err := EncodeValue(args[2])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid value: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.client.Write(ctx, subnode, address, data)
	if c.reportError(err) {
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) cmdWatch(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: watch <subnode> <address> [type] [count]")
		return
	}
	subnode, address, ok := c.parseTarget(args[0], args[1])
	if !ok {
		return
	}
	dt := types.DataTypeUnknown
	count := defaultWatchCount
	for _, arg := range args[2:] {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			count = n
			continue
		}
		dt = types.ParseDataType(arg)
		if !dt.Known() {
			fmt.Fprintf(c.out, "Unknown type: %s\n", arg)
			return
		}
	}

	samples := make(chan mcb.Sample, count)
	poller := mcb.NewPoller(c.client, []mcb.Target{{Subnode: subnode, Address: address}}, c.interval,
		func(s mcb.Sample) {
			select {
			case samples <- s:
			default:
			}
		}, c.logger)
	poller.Start()
	defer poller.Stop()

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return
		case s := <-samples:
			ts := s.Time.Format("15:04:05.000")
			if s.Err != nil {
				var reply *mcb.ErrorReply
				if errors.As(s.Err, &reply) {
					fmt.Fprintf(c.out, "%s %d/%s error 0x%X\n", ts, subnode, dictionary.FormatAddress(address), reply.Code)
				} else {
					fmt.Fprintf(c.out, "%s %d/%s failed: %v\n", ts, subnode, dictionary.FormatAddress(address), s.Err)
				}
				continue
			}
			fmt.Fprintf(c.out, "%s %d/%s = %s\n", ts, subnode, dictionary.FormatAddress(address), FormatFrame(s.Frame, dt))
		}
	}
}

func (c *Console) cmdTarget(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Target: %s\n", c.client.Address())
		return
	}
	if err := c.connect(args[0]); err != nil {
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Target: %s\n", c.client.Address())
}

func (c *Console) cmdLog(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: log <file> [subnode]")
		return
	}

	var filter protolog.Filter
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			fmt.Fprintf(c.out, "Invalid subnode: %s\n", args[1])
			return
		}
		subnode := uint8(n)
		filter.Subnode = &subnode
	}

	r, err := protolog.NewFilteredReader(args[0], filter)
	if err != nil {
		fmt.Fprintf(c.out, "Open failed: %v\n", err)
		return
	}
	defer r.Close()

	count := 0
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(c.out, "Read failed after %d events: %v\n", count, err)
			return
		}
		fmt.Fprintln(c.out, FormatEvent(event))
		count++
	}
	fmt.Fprintf(c.out, "%d events\n", count)
}

func (c *Console) parseTarget(subnodeText, addressText string) (uint8, uint16, bool) {
	n, err := strconv.ParseUint(subnodeText, 10, 8)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid subnode: %s\n", subnodeText)
		return 0, 0, false
	}
	address, err := dictionary.ParseInputAddress(addressText)
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return 0, 0, false
	}
	return uint8(n), address, true
}

func (c *Console) reportError(err error) bool {
	if err == nil {
		return false
	}
	var reply *mcb.ErrorReply
	if errors.As(err, &reply) {
		fmt.Fprintf(c.out, "Error reply 0x%X\n", reply.Code)
		return true
	}
	fmt.Fprintf(c.out, "Request failed: %v\n", err)
	return true
}

// FormatFrame renders the data of an acknowledge frame as dt. Without a type
// it shows the raw bytes and the u32 reading.
func FormatFrame(f *mcb.Frame, dt types.DataType) string {
	switch dt {
	case types.DataTypeU8:
		return fmt.Sprintf("%d", f.U8())
	case types.DataTypeS8:
		return fmt.Sprintf("%d", f.I8())
	case types.DataTypeU16:
		return fmt.Sprintf("%d", f.U16())
	case types.DataTypeS16:
		return fmt.Sprintf("%d", f.I16())
	case types.DataTypeU32:
		return fmt.Sprintf("%d", f.U32())
	case types.DataTypeS32:
		return fmt.Sprintf("%d", f.I32())
	case types.DataTypeFloat:
		return fmt.Sprintf("%g", f.F32())
	case types.DataTypeStr:
		return strconv.Quote(f.Str())
	}
	if f.Extended {
		return fmt.Sprintf("% X (%s)", f.Payload, strconv.Quote(f.Str()))
	}
	return fmt.Sprintf("% X (u32 %d)", f.Data, f.U32())
}

// EncodeValue turns a typed-in value into write data: integers (decimal or
// 0x hex) as 32-bit little-endian, decimals as float32.
func EncodeValue(text string) ([]byte, error) {
	data := make([]byte, 4)
	lower := strings.ToLower(text)

	switch {
	case strings.HasPrefix(lower, "0x"):
		n, err := strconv.ParseUint(lower[2:], 16, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(data, uint32(n))
	case strings.ContainsAny(lower, ".e"):
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(data, math.Float32bits(float32(f)))
	case strings.HasPrefix(lower, "-"):
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(data, uint32(int32(n)))
	default:
		n, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(data, uint32(n))
	}
	return data, nil
}

func FormatEvent(e protolog.Event) string {
	ts := e.Timestamp.Format("15:04:05.000000")
	if e.Kind == protolog.KindFault {
		return fmt.Sprintf("%s #%d FAULT %s", ts, e.Sequence, e.Reason)
	}
	line := fmt.Sprintf("%s #%d %s %d/%s -> %s", ts, e.Sequence, e.Command, e.Subnode,
		dictionary.FormatAddress(e.Address), e.Value)
	if e.Elapsed > 0 {
		line += fmt.Sprintf(" (%s)", e.Elapsed)
	}
	return line
}
