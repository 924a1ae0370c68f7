package mail

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	ok := Message{To: "ana@example.com", Subject: "Routine", HTML: "<p>hi</p>"}
	assert.NoError(t, Validate(ok))

	for name, msg := range map[string]Message{
		"bad recipient": {To: "not-an-email", Subject: "s", Text: "b"},
		"no subject":    {To: "ana@example.com", Text: "b"},
		"no body":       {To: "ana@example.com", Subject: "s"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(Validate(msg), ErrInvalidMessage))
		})
	}
}

func TestRender(t *testing.T) {
	got := Render("Hi {{name}}, this goes to {{ email }}.", "<Ana>", "ana@example.com")
	assert.Equal(t, "Hi &lt;Ana&gt;, this goes to ana@example.com.", got)
	assert.Equal(t, "Hi there", Render("Hi {{name}}", "", ""))
}

func TestDocument(t *testing.T) {
	doc := Document("Your routine", "<p>x</p>")
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<title>Your routine</title>")
	assert.Contains(t, doc, "<p>x</p>")
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Message{To: "a@b.co", Subject: "s", Text: "t"}))
	assert.Error(t, LogSender{}.Send(context.Background(), Message{To: "", Subject: "s", Text: "t"}))
}

// fakeSMTP accepts one message and reports the DATA payload.
func fakeSMTP(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		tp.PrintfLine("220 fake ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.Fields(line)[0])
			switch cmd {
			case "EHLO", "HELO":
				tp.PrintfLine("250 fake")
			case "MAIL", "RCPT":
				tp.PrintfLine("250 OK")
			case "DATA":
				tp.PrintfLine("354 go ahead")
				lines, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				out <- strings.Join(lines, "\n")
				tp.PrintfLine("250 queued")
			case "QUIT":
				tp.PrintfLine("221 bye")
				return
			default:
				tp.PrintfLine("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestSMTPSender(t *testing.T) {
	addr, data := fakeSMTP(t)
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := net.LookupPort("tcp", portStr)

	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "glow@example.com"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Send(ctx, Message{To: "ana@example.com", Subject: "Your routine", HTML: "<p>Cleanse</p>"})
	require.NoError(t, err)

	select {
	case payload := <-data:
		r := textproto.NewReader(bufio.NewReader(strings.NewReader(payload + "\n")))
		hdr, err := r.ReadMIMEHeader()
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", hdr.Get("To"))
		assert.Equal(t, "Your routine", hdr.Get("Subject"))
		assert.Equal(t, "text/html; charset=UTF-8", hdr.Get("Content-Type"))
		assert.Contains(t, payload, "<p>Cleanse</p>")
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestSMTPSenderRejectsInvalid(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "glow@example.com"})
	err := s.Send(context.Background(), Message{To: "bad", Subject: "s", Text: "t"})
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}
