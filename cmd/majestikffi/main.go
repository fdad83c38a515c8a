// Command majestikffi builds the simulation as a C shared library:
//
//	go build -buildmode=c-shared -o libmajestik.so ./cmd/majestikffi
//
// Every function returns a gateway code (0 = OK). Output pointers must be
// non-null; a null one yields MalformedInput. Buffers returned by
// mw_publish_delta and mw_export_config live in C memory and stay valid
// until mw_release_buffer or mw_shutdown.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"math"
	"os"
	"unsafe"

	"github.com/beyawnko/Majestik-World/internal/arena"
	"github.com/beyawnko/Majestik-World/internal/config"
	"github.com/beyawnko/Majestik-World/internal/gateway"
	"github.com/beyawnko/Majestik-World/internal/logging"
	"go.uber.org/zap"
)

// cAllocator backs arena blocks with malloc so the host may hold them
// across calls.
type cAllocator struct{}

func (cAllocator) Alloc(n int) ([]byte, error) {
	p := C.malloc(C.size_t(n))
	if p == nil {
		return nil, errors.New("malloc failed")
	}
	return unsafe.Slice((*byte)(p), n), nil
}

func (cAllocator) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	C.free(unsafe.Pointer(unsafe.SliceData(b)))
}

var gw = gateway.New(
	gateway.WithAllocator(cAllocator{}),
	gateway.WithLogger(newLogger()),
)

// newLogger logs JSON to stderr at MAJESTIK_LOG_LEVEL (default warn).
func newLogger() *zap.Logger {
	level := os.Getenv("MAJESTIK_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log, err := logging.New(config.LoggingConfig{Level: level, Format: "json"})
	if err != nil {
		return zap.NewNop()
	}
	return log.Named("majestik")
}

func code(c gateway.Code) C.int32_t { return C.int32_t(c) }

// goBytes copies a host buffer; a null or oversized one becomes nil, which
// the gateway rejects.
func goBytes(p *C.uint8_t, n C.size_t) []byte {
	if p == nil || n == 0 || uint64(n) > math.MaxInt32 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(n))
}

func writeBuffer(buf gateway.Buffer, outBuf *C.uint64_t, outPtr **C.uint8_t, outLen *C.size_t) {
	*outBuf = C.uint64_t(buf.Handle)
	*outPtr = (*C.uint8_t)(unsafe.Pointer(unsafe.SliceData(buf.Data)))
	*outLen = C.size_t(len(buf.Data))
}

//export mw_abi_version
func mw_abi_version() C.uint32_t {
	return C.uint32_t(gateway.ABIVersion)
}

//export mw_init
func mw_init(version C.uint32_t, cfg *C.uint8_t, cfgLen C.size_t, outSim *C.uint64_t) C.int32_t {
	if outSim == nil {
		return code(gateway.MalformedInput)
	}
	h, c := gw.Init(uint32(version), goBytes(cfg, cfgLen))
	*outSim = C.uint64_t(h)
	return code(c)
}

//export mw_tick
func mw_tick(version C.uint32_t, sim C.uint64_t, frame *C.uint8_t, frameLen C.size_t, outTick *C.uint64_t) C.int32_t {
	if outTick == nil {
		return code(gateway.MalformedInput)
	}
	tick, c := gw.Tick(uint32(version), gateway.SimHandle(sim), goBytes(frame, frameLen))
	*outTick = C.uint64_t(tick)
	return code(c)
}

//export mw_shutdown
func mw_shutdown(version C.uint32_t, sim C.uint64_t) C.int32_t {
	return code(gw.Shutdown(uint32(version), gateway.SimHandle(sim)))
}

//export mw_publish_delta
func mw_publish_delta(version C.uint32_t, sim C.uint64_t, outBuf *C.uint64_t, outPtr **C.uint8_t, outLen *C.size_t) C.int32_t {
	if outBuf == nil || outPtr == nil || outLen == nil {
		return code(gateway.MalformedInput)
	}
	buf, c := gw.PublishDelta(uint32(version), gateway.SimHandle(sim))
	writeBuffer(buf, outBuf, outPtr, outLen)
	return code(c)
}

//export mw_release_buffer
func mw_release_buffer(version C.uint32_t, sim C.uint64_t, buf C.uint64_t) C.int32_t {
	return code(gw.ReleaseBuffer(uint32(version), gateway.SimHandle(sim), arena.Handle(buf)))
}

//export mw_live_buffers
func mw_live_buffers(version C.uint32_t, sim C.uint64_t, out *C.uint64_t) C.int32_t {
	if out == nil {
		return code(gateway.MalformedInput)
	}
	n, c := gw.LiveBuffers(uint32(version), gateway.SimHandle(sim))
	*out = C.uint64_t(n)
	return code(c)
}

//export mw_time_seconds
func mw_time_seconds(version C.uint32_t, sim C.uint64_t, out *C.double) C.int32_t {
	if out == nil {
		return code(gateway.MalformedInput)
	}
	secs, c := gw.TimeSeconds(uint32(version), gateway.SimHandle(sim))
	*out = C.double(secs)
	return code(c)
}

//export mw_time_of_day_seconds
func mw_time_of_day_seconds(version C.uint32_t, sim C.uint64_t, out *C.double) C.int32_t {
	if out == nil {
		return code(gateway.MalformedInput)
	}
	secs, c := gw.TimeOfDaySeconds(uint32(version), gateway.SimHandle(sim))
	*out = C.double(secs)
	return code(c)
}

//export mw_program_time_seconds
func mw_program_time_seconds(version C.uint32_t, sim C.uint64_t, out *C.double) C.int32_t {
	if out == nil {
		return code(gateway.MalformedInput)
	}
	secs, c := gw.ProgramTimeSeconds(uint32(version), gateway.SimHandle(sim))
	*out = C.double(secs)
	return code(c)
}

//export mw_export_config
func mw_export_config(version C.uint32_t, sim C.uint64_t, outBuf *C.uint64_t, outPtr **C.uint8_t, outLen *C.size_t) C.int32_t {
	if outBuf == nil || outPtr == nil || outLen == nil {
		return code(gateway.MalformedInput)
	}
	buf, c := gw.PublishConfig(uint32(version), gateway.SimHandle(sim))
	writeBuffer(buf, outBuf, outPtr, outLen)
	return code(c)
}

func main() {}
