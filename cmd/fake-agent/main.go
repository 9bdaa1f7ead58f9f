// ABOUTME: Minimal fake provider CLI for manual runs — reads lines, replies after a delay.
// ABOUTME: Usage: fake-agent [-delay 500ms] [-session] [-stubborn] [-reply "echo: %s"]

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
)

func main() {
	delay := flag.Duration("delay", 500*time.Millisecond, "pause before each reply")
	session := flag.Bool("session", true, "print a Session ID line on startup")
	stubborn := flag.Bool("stubborn", false, "ignore the exit line and SIGTERM (for stop-escalation demos)")
	reply := flag.String("reply", "echo: %s", "reply template, %s is the received line")
	flag.Parse()

	if err := run(*delay, *session, *stubborn, *reply); err != nil {
		log.Fatal(err)
	}
}

func run(delay time.Duration, session, stubborn bool, reply string) error {
	if stubborn {
		// Swallow SIGTERM so only SIGKILL ends us.
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM)
		go func() {
			for range ch {
			}
		}()
	}

	if session {
		fmt.Printf("Session ID: %s\n", uuid.New())
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()

		if (line == "/exit" || line == "/quit") && !stubborn {
			fmt.Println("bye")
			return nil
		}

		time.Sleep(delay)
		fmt.Printf(reply+"\n", line)
	}
	return scanner.Err()
}
