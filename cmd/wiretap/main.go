package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sweeney/asterisk-callhook/internal/ami"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Asterisk AMI host")
	port := flag.Int("port", 5038, "Asterisk AMI port")
	user := flag.String("user", "admin", "AMI username")
	secret := flag.String("secret", "", "AMI secret")
	outDir := flag.String("outdir", "testdata/captures", "Output directory for captures")
	sanitize := flag.String("sanitize", "", "Sanitize a capture file in-place (keeps .bak)")
	replay := flag.String("replay", "", "Replay a capture file through the rules and print notifications")
	configPath := flag.String("config", "", "Config file supplying rules for -replay")
	channel := flag.String("channel", ".*", "Incoming trunk channel pattern for -replay without -config")
	flag.Parse()

	if *sanitize != "" {
		if err := sanitizeFile(*sanitize); err != nil {
			fmt.Fprintf(os.Stderr, "sanitize error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("sanitized:", *sanitize)
		return
	}

	if *replay != "" {
		if err := replayFile(*replay, *configPath, *channel, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "replay error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := capture(ctx, net.JoinHostPort(*host, strconv.Itoa(*port)), *user, *secret, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// capture logs in and copies the raw manager stream to a timestamped file
// until interrupted.
func capture(ctx context.Context, addr, user, secret, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	filename := filepath.Join(outDir, time.Now().Format("20060102-150405")+".raw")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	fmt.Printf("connecting to %s...\n", addr)
	sess, err := ami.Dial(ctx, addr, ami.WithTee(f))
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Printf("writing to %s\n", filename)
	fmt.Printf("banner: %s\n", sess.Banner())

	if err := sess.Login(user, secret); err != nil {
		return err
	}

	stop := logoffOnCancel(ctx, sess, os.Stderr)
	defer stop()

	fmt.Println("streaming events (ctrl+c to stop)...")
	count := 0
	err = sess.Events(func(evt ami.Event) {
		count++
		fmt.Printf("\r%d events, last %s   ", count, evt.Type())
	})
	fmt.Println()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// logoffOnCancel logs the session off once ctx is done and closes it shortly
// after. If the logoff cannot be sent the error goes to errOut and the
// session is closed at once.
func logoffOnCancel(ctx context.Context, sess *ami.Session, errOut io.Writer) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		if err := sess.Logoff(); err != nil {
			fmt.Fprintf(errOut, "AMI logoff: %v\n", err)
			sess.Close()
			return
		}
		time.AfterFunc(time.Second, func() { sess.Close() })
	})
}
