package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"rtps/config"
	"rtps/host/console"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device path or tcp://host:port")
	preset  = flag.String("map", "rtps", "Mailbox map of the board (rtps, trch, hpps) or a JSON file")
	timeout = flag.Duration("timeout", console.DefaultTimeout, "Per-request timeout")
	command = flag.String("c", "", "Run one command and exit")
)

func main() {
	flag.Parse()

	sys, err := loadMap(*preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	client, err := console.Connect(*device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()
	client.Timeout = *timeout
	client.UseMap(sys)

	if *command != "" {
		if err := run(client, *command); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Connected to %s on %s\n", sys.Name, *device)
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := run(client, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Println("Goodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

var errQuit = errors.New("quit")

func loadMap(name string) (*config.System, error) {
	if sys, ok := config.Preset(name); ok {
		return sys, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("no preset or file %q: %w", name, err)
	}
	return config.Load(data)
}

// run executes one console line
func run(client *console.Client, line string) error {
	parts, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("bad command line: %w", err)
	}
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		printHelp()
		return nil

	case "links":
		for i, l := range client.Links() {
			fmt.Printf("  [%d] %s\n", i, l)
		}
		return nil

	case "echo":
		if len(parts) < 2 {
			return errors.New("usage: echo <link> [words...]")
		}
		idx, args, err := linkArgs(client, parts[1], parts[2:])
		if err != nil {
			return err
		}
		start := time.Now()
		reply, err := client.Echo(idx, args...)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%v)\n", words(reply), time.Since(start).Round(time.Microsecond))
		return nil

	case "reset":
		if len(parts) != 3 {
			return errors.New("usage: reset <link> <target>")
		}
		idx, args, err := linkArgs(client, parts[1], parts[2:])
		if err != nil {
			return err
		}
		status, err := client.Reset(idx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("reset status %d\n", status)
		return nil

	case "req":
		if len(parts) < 3 {
			return errors.New("usage: req <link> <opcode> [words...]")
		}
		idx, args, err := linkArgs(client, parts[1], parts[2:])
		if err != nil {
			return err
		}
		reply, err := client.Request(idx, args[0], args[1:]...)
		if err != nil {
			return err
		}
		fmt.Println(words(reply))
		return nil
	}

	return fmt.Errorf("unknown command: %s (type 'help' for available commands)", parts[0])
}

func linkArgs(client *console.Client, name string, raw []string) (uint32, []uint32, error) {
	idx, err := client.Resolve(name)
	if err != nil {
		return 0, nil, err
	}
	args := make([]uint32, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, nil, fmt.Errorf("bad word %q: %w", s, err)
		}
		args[i] = uint32(v)
	}
	return idx, args, nil
}

func words(w []uint32) string {
	parts := make([]string, len(w))
	for i, v := range w {
		parts[i] = fmt.Sprintf("0x%x", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  links                        - List bridged links")
	fmt.Println("  echo <link> [words...]       - ECHO the words through a link")
	fmt.Println("  reset <link> <target>        - Ask the peer to reset target")
	fmt.Println("  req <link> <opcode> [words]  - Send a raw request")
	fmt.Println("  quit/exit/q                  - Exit the program")
	fmt.Println("\n<link> is a label or an index; words take 0x and 0 prefixes.")
	fmt.Println()
}
