// Package server is the command processor behind server links: a registry
// of opcode handlers that turn a command into reply words.
package server

import (
	"errors"

	"rtps/command"
	"rtps/core"
)

// Opcodes shared with the peers' firmware
const (
	CmdEcho  = 0x1
	CmdNop   = 0x2
	CmdReset = 0x3
)

// ErrUnknownOpcode is returned for opcodes with no handler
var ErrUnknownOpcode = errors.New("server: unknown opcode")

// Handler runs one opcode. It writes up to len(reply) words and returns how
// many it produced.
type Handler func(cmd *command.Command, reply []uint32) (int, error)

// ResetHook performs a reset request and returns a status word for the reply
type ResetHook func(target uint32) uint32

type entry struct {
	name    string
	handler Handler
}

// Server implements command.Processor over its registered opcodes. Handlers
// are registered at boot, before the first command is processed.
type Server struct {
	handlers map[uint32]entry
	reset    ResetHook
}

// New creates a server with ECHO, NOP and RESET registered
func New() *Server {
	s := &Server{handlers: make(map[uint32]entry)}
	s.Register(CmdEcho, "echo", handleEcho)
	s.Register(CmdNop, "nop", handleNop)
	s.Register(CmdReset, "reset", s.handleReset)
	return s
}

// Register installs h for opcode, replacing any previous handler
func (s *Server) Register(opcode uint32, name string, h Handler) {
	s.handlers[opcode] = entry{name: name, handler: h}
}

// Name returns the registered name of opcode
func (s *Server) Name(opcode uint32) (string, bool) {
	e, ok := s.handlers[opcode]
	return e.name, ok
}

// SetResetHook installs the handler for CmdReset
func (s *Server) SetResetHook(h ResetHook) {
	s.reset = h
}

// Process runs one command
func (s *Server) Process(cmd *command.Command, reply []uint32) (int, error) {
	e, ok := s.handlers[cmd.Opcode]
	if !ok {
		core.DebugPrintln("[SERVER] ERROR: unknown cmd: " + core.Hex32(cmd.Opcode))
		return 0, ErrUnknownOpcode
	}
	if core.IsDebugEnabled() {
		core.DebugPrintln("[SERVER] " + e.name + " " + core.Hex32(cmd.Args[0]) + "...")
	}
	return e.handler(cmd, reply)
}

func handleEcho(cmd *command.Command, reply []uint32) (int, error) {
	return copy(reply, cmd.Args[:]), nil
}

func handleNop(cmd *command.Command, reply []uint32) (int, error) {
	return 0, nil
}

func (s *Server) handleReset(cmd *command.Command, reply []uint32) (int, error) {
	if s.reset == nil {
		core.DebugPrintln("[SERVER] no reset handler")
		return 0, ErrUnknownOpcode
	}
	status := s.reset(cmd.Args[0])
	if len(reply) == 0 {
		return 0, nil
	}
	reply[0] = status
	return 1, nil
}

var _ command.Processor = (*Server)(nil)
