// Command mmecho is a fiber-per-connection TCP echo server exercising the
// mainmemory public API end-to-end: a Domain of worker contexts, an
// acceptor fiber that blocks on the listening socket via Context.WaitFD
// and hands each connection off to a round-robin worker, and one
// connection fiber per socket that blocks on its own sink's read/write
// readiness instead of running as a plain callback-driven reactor (spec
// §6.3's supplemented "echo service" scenario, CORE item (ii)'s fiber/
// event-dispatch coupling, and §4.8's blocking async syscall wrapper via
// a reverse-DNS lookup per accepted connection).
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/mainmemory/mainmemory-go"
	"github.com/mainmemory/mainmemory-go/internal/fiber"
	"github.com/mainmemory/mainmemory-go/internal/poller"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9107", "listen address")
	workers := flag.Int("workers", 0, "worker contexts (0: automaxprocs default)")
	flag.Parse()

	domain, err := mainmemory.NewDomain(mainmemory.DomainConfig{Workers: *workers})
	if err != nil {
		log.Fatalf("new domain: %v", err)
	}
	if err := domain.Start(); err != nil {
		log.Fatalf("start domain: %v", err)
	}
	defer domain.Stop()

	lfd, err := listen(*addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer unix.Close(lfd)

	// The listener lives on context 0; accepted connections are handed
	// off round-robin to every context in the domain via Context.Post,
	// the only safe way to create a fiber on a context other than the
	// one the caller is currently running on (spec §4.8's inbox, reused
	// here rather than touching another context's Strand directly).
	acceptorCtx := domain.Contexts()[0]
	contexts := domain.Contexts()
	var nextContext atomic.Uint64

	listenerSink, err := acceptorCtx.RegisterFD(lfd, poller.Read, nil, nil)
	if err != nil {
		log.Fatalf("register listener: %v", err)
	}

	acceptorCtx.Spawn(fiber.Attr{}, func(any) any {
		for {
			if _, err := acceptorCtx.WaitFD(listenerSink, poller.Read); err != nil {
				return nil
			}
			for {
				cfd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK)
				if err != nil {
					break
				}
				logAccepted(domain, cfd)
				target := contexts[nextContext.Add(1)%uint64(len(contexts))]
				handOff(domain, target, cfd)
			}
		}
	}, nil)

	log.Printf("mmecho listening on %s", *addr)
	select {}
}

// logAccepted formats a one-line log entry for a freshly accepted fd
// using the domain's common arena rather than a context-private one: at
// this point the connection hasn't been handed off to any context yet,
// the exact scenario arena.Common's doc comment describes (spec §6
// "common (thread-lock guarded)").
func logAccepted(domain *mainmemory.Domain, fd int) {
	scratch := domain.CommonArena().Alloc(16)
	scratch = strconv.AppendInt(scratch[:0], int64(fd), 10)
	log.Printf("accepted fd %s", scratch)
	domain.CommonArena().Free(scratch)
}

// handOff posts fd's registration and connection fiber onto target's own
// inbox, so both RegisterFD and Spawn run on target's own driver
// goroutine regardless of which context's fiber called handOff.
func handOff(domain *mainmemory.Domain, target *mainmemory.Context, fd int) {
	target.Post(func([5]uintptr) {
		sink, err := target.RegisterFD(fd, poller.Read, nil, nil)
		if err != nil {
			unix.Close(fd)
			return
		}
		target.Spawn(fiber.Attr{}, func(any) any {
			runConn(domain, target, sink, fd)
			return nil
		}, nil)
	}, [5]uintptr{})
}

// runConn is a connection fiber's body: one reverse-DNS lookup via
// Context.Async (spec §4.8), then an echo loop blocking on the sink's
// read/write readiness via Context.WaitFD instead of being driven by
// inline poller callbacks.
func runConn(domain *mainmemory.Domain, ctx *mainmemory.Context, sink *mainmemory.Sink, fd int) {
	defer func() {
		_ = ctx.UnregisterFD(fd)
		unix.Close(fd)
	}()

	if host, err := peerHostname(ctx, fd); err == nil && host != "" {
		log.Printf("connection from %s", host)
	}

	buf := ctx.Arena().Alloc(4096)
	defer ctx.Arena().Free(buf)

	var pending []byte
	for {
		if _, err := ctx.WaitFD(sink, poller.Read); err != nil {
			return
		}
		for {
			n, err := unix.Read(fd, buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
			}
			if err == unix.EAGAIN {
				break
			}
			if err != nil || n == 0 {
				return
			}
			if n < len(buf) {
				break
			}
		}
		if err := writeAll(ctx, sink, fd, &pending); err != nil {
			return
		}
	}
}

// writeAll drains pending to fd, blocking the calling fiber on the
// sink's write readiness (via Context.WaitFD) whenever the socket's send
// buffer is momentarily full, instead of re-arming a callback.
func writeAll(ctx *mainmemory.Context, sink *mainmemory.Sink, fd int, pending *[]byte) error {
	for len(*pending) > 0 {
		n, err := unix.Write(fd, *pending)
		if n > 0 {
			*pending = (*pending)[n:]
		}
		if err == unix.EAGAIN {
			if _, err := ctx.WaitFD(sink, poller.Write); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// peerHostname performs a genuinely blocking reverse-DNS lookup on fd's
// remote address via Context.Async (spec §4.8's "blocking async syscall
// wrapper"): the lookup itself runs on the domain's shared helper-thread
// pool, off this connection's own context entirely, while this fiber
// blocks until the result is posted back.
func peerHostname(ctx *mainmemory.Context, fd int) (string, error) {
	result, err := ctx.Async(func() (any, error) {
		sa, err := unix.Getpeername(fd)
		if err != nil {
			return nil, err
		}
		sa4, ok := sa.(*unix.SockaddrInet4)
		if !ok {
			return nil, fmt.Errorf("mmecho: unsupported sockaddr type %T", sa)
		}
		names, err := net.LookupAddr(net.IP(sa4.Addr[:]).String())
		if err != nil || len(names) == 0 {
			return "", err
		}
		return names[0], nil
	})
	if err != nil {
		return "", err
	}
	host, _ := result.(string)
	return host, nil
}

func listen(addr string) (int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	ip4 := ip.To4()

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip4)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
