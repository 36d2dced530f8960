// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

// HandlerFunc handles one opcode on a peripheral. data aliases the decoded
// message and is only valid for the duration of the call.
type HandlerFunc func(ctx *Context, opcode uint8, data []byte, user any)

// MessageFunc receives messages for opcodes with no registered handler
type MessageFunc func(ctx *Context, m *Message)

// RequestFunc populates the reply for a bus read. It typically switches on
// ctx.RequestedOpcode().
type RequestFunc func(ctx *Context, reply *Message)

type handlerSlot struct {
	opcode uint8
	fn     HandlerFunc
	user   any
}

// Context holds the per-endpoint protocol state: role, address, handler
// table, staged reply opcode and CRC statistics.
//
// A Context is not safe for concurrent use. Once initialized it performs no
// allocation; the handler table is a fixed array scanned in insertion order.
type Context struct {
	role    Role
	address uint8

	handlers     [MaxHandlers]handlerSlot
	handlerCount int

	requestedOpcode uint8

	crcErrorCount uint32
	lastCRCOK     bool

	onMessage MessageFunc
	onRequest RequestFunc
	user      any
}

// NewContext allocates and initializes a context
func NewContext(role Role, address uint8) *Context {
	ctx := &Context{}
	ctx.Init(role, address)
	return ctx
}

// Init resets ctx for the given role. Controllers always have address 0.
// Use this for statically allocated contexts.
func (ctx *Context) Init(role Role, address uint8) {
	if role != RolePeripheral {
		address = 0
	}
	*ctx = Context{
		role:      role,
		address:   address,
		lastCRCOK: true,
	}
}

// Role returns the role fixed at Init
func (ctx *Context) Role() Role {
	return ctx.role
}

// Address returns the peripheral address, 0 for controllers
func (ctx *Context) Address() uint8 {
	return ctx.address
}

// User returns the user data passed to SetCallbacks
func (ctx *Context) User() any {
	return ctx.user
}

// RequestedOpcode returns the opcode staged by the last SET_REPLY, or
// OpcodeVersion if none has been received.
func (ctx *Context) RequestedOpcode() uint8 {
	return ctx.requestedOpcode
}

// CRCErrorCount returns the number of failed decodes against this context
func (ctx *Context) CRCErrorCount() uint32 {
	return ctx.crcErrorCount
}

// LastCRCOK reports whether the most recent decode succeeded
func (ctx *Context) LastCRCOK() bool {
	return ctx.lastCRCOK
}

// ResetCRCStats clears the error count and marks the last decode as good
func (ctx *Context) ResetCRCStats() {
	ctx.crcErrorCount = 0
	ctx.lastCRCOK = true
}

func (ctx *Context) recordDecode(err error) {
	if err != nil {
		ctx.crcErrorCount++
		ctx.lastCRCOK = false
		return
	}
	ctx.lastCRCOK = true
}

// SetCallbacks installs the fallback message callback, the reply builder and
// the user data returned by User. Either callback may be nil.
func (ctx *Context) SetCallbacks(onMessage MessageFunc, onRequest RequestFunc, user any) {
	ctx.onMessage = onMessage
	ctx.onRequest = onRequest
	ctx.user = user
}

// Register binds fn to opcode. Registering an opcode twice replaces the
// earlier handler in place. Fails with ErrHandlerTableFull once MaxHandlers
// distinct opcodes are registered.
func (ctx *Context) Register(opcode uint8, fn HandlerFunc, user any) error {
	if fn == nil {
		return ErrNilHandler
	}

	for i := 0; i < ctx.handlerCount; i++ {
		if ctx.handlers[i].opcode == opcode {
			ctx.handlers[i].fn = fn
			ctx.handlers[i].user = user
			return nil
		}
	}

	if ctx.handlerCount >= MaxHandlers {
		return ErrHandlerTableFull
	}

	ctx.handlers[ctx.handlerCount] = handlerSlot{opcode: opcode, fn: fn, user: user}
	ctx.handlerCount++
	return nil
}

// Unregister removes the handler for opcode, keeping the order of the rest.
// It reports whether a handler was removed.
func (ctx *Context) Unregister(opcode uint8) bool {
	for i := 0; i < ctx.handlerCount; i++ {
		if ctx.handlers[i].opcode != opcode {
			continue
		}
		copy(ctx.handlers[i:ctx.handlerCount], ctx.handlers[i+1:ctx.handlerCount])
		ctx.handlerCount--
		ctx.handlers[ctx.handlerCount] = handlerSlot{}
		return true
	}
	return false
}

// HandlerCount returns the number of registered handlers
func (ctx *Context) HandlerCount() int {
	return ctx.handlerCount
}

func (ctx *Context) lookup(opcode uint8) *handlerSlot {
	for i := 0; i < ctx.handlerCount; i++ {
		if ctx.handlers[i].opcode == opcode {
			return &ctx.handlers[i]
		}
	}
	return nil
}

// HandleReceive processes a frame written to this peripheral.
//
// A frame that fails to decode is dropped and its error returned; the CRC
// statistics record the failure. A SET_REPLY stages payload byte 0 for the
// next read and goes no further. Other opcodes go to their registered
// handler, else to the message callback, else are ignored.
func (ctx *Context) HandleReceive(frame []byte) error {
	if ctx.role != RolePeripheral {
		return ErrWrongRole
	}

	m, err := Decode(frame, ctx)
	if err != nil {
		return err
	}

	if m.Opcode == OpcodeSetReply {
		if m.DataLen > 0 {
			ctx.requestedOpcode = m.Data[0]
		}
		return nil
	}

	if h := ctx.lookup(m.Opcode); h != nil {
		h.fn(ctx, m.Opcode, m.Data[:m.DataLen], h.user)
		return nil
	}

	if ctx.onMessage != nil {
		ctx.onMessage(ctx, &m)
	}
	return nil
}

// BuildReply encodes the reply for a bus read into out and returns the frame
// length. Without a request callback the reply is an empty, valid frame.
func (ctx *Context) BuildReply(out []byte) (int, error) {
	if ctx.role != RolePeripheral {
		return 0, ErrWrongRole
	}

	var reply Message
	if ctx.onRequest != nil {
		ctx.onRequest(ctx, &reply)
	}
	return Encode(&reply, out)
}
