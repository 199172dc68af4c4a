package parser

import (
	"bytes"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseCommand", func() {
	var (
		input    string
		reader   *strings.Reader
		parser   *Parser
		cmd      *Command
		parseErr error
	)

	JustBeforeEach(func() {
		reader = strings.NewReader(input)
		parser, parseErr = NewParser(reader)
		Expect(parseErr).NotTo(HaveOccurred())

		cmd, parseErr = parser.ParseCommand()
		Expect(parseErr).NotTo(HaveOccurred())
	})

	Context("when parsing search command with a query and a limit", func() {
		BeforeEach(func() {
			input = `TXT01
"visual studio
3
search
`
		})

		It("should parse command name correctly", func() {
			Expect(cmd.Name).To(Equal(CmdSearch))
		})

		It("should parse two arguments", func() {
			Expect(cmd.Args).To(HaveLen(2))
		})

		It("should parse first argument as string", func() {
			Expect(cmd.Args[0].Type).To(Equal(TypeString))
			Expect(cmd.Args[0].Str).To(Equal("visual studio"))
		})

		It("should parse second argument as int", func() {
			Expect(cmd.Args[1].Type).To(Equal(TypeInt))
			Expect(cmd.Args[1].Int).To(Equal(int64(3)))
		})
	})

	Context("when the first value follows the header on the same line", func() {
		BeforeEach(func() {
			input = "TXT01\"~/Co\ncomplete\n"
		})

		It("should parse the value", func() {
			Expect(cmd.Name).To(Equal(CmdComplete))
			Expect(cmd.Args).To(HaveLen(1))
			Expect(cmd.Args[0].Str).To(Equal("~/Co"))
		})
	})

	Context("when a string value has trailing blanks", func() {
		BeforeEach(func() {
			input = "TXT01\n\"git \r\nclassify\r\n"
		})

		It("should keep them", func() {
			Expect(cmd.Name).To(Equal(CmdClassify))
			Expect(cmd.Args[0].Str).To(Equal("git "))
		})
	})

	Context("when parsing reindex command without arguments", func() {
		BeforeEach(func() {
			input = `TXT01
# comment

reindex`
		})

		It("should parse command name correctly", func() {
			Expect(cmd.Name).To(Equal(CmdReindex))
		})

		It("should have no arguments", func() {
			Expect(cmd.Args).To(HaveLen(0))
		})
	})
})

var _ = Describe("Parser", func() {
	It("should reject a foreign header", func() {
		_, err := NewParser(strings.NewReader("JSON1\n"))
		Expect(err).To(HaveOccurred())
	})

	It("should reject a short header", func() {
		_, err := NewParser(strings.NewReader("TX"))
		Expect(err).To(HaveOccurred())
	})

	It("should report the protocol version", func() {
		p, err := NewParser(strings.NewReader("TXT01\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Version()).To(Equal("01"))
	})

	It("should report malformed values", func() {
		p, err := NewParser(strings.NewReader("TXT01\nbogus\nstatus\n"))
		Expect(err).NotTo(HaveOccurred())
		_, err = p.ParseCommand()
		Expect(err).To(MatchError(ContainSubstring("cannot parse value")))
	})

	It("should read every command in a stream", func() {
		p, err := NewParser(strings.NewReader("TXT01\nstatus\n\"/tmp\nvisit\n10\nrecent\n\"dangling\n"))
		Expect(err).NotTo(HaveOccurred())
		cmds, err := p.ReadAllCommands()
		Expect(err).NotTo(HaveOccurred())
		Expect(cmds).To(HaveLen(3))
		Expect(cmds[1].Name).To(Equal(CmdVisit))
		Expect(cmds[2].Args[0].Int).To(Equal(int64(10)))

		_, err = p.ParseCommand()
		Expect(err).To(Equal(io.EOF))
	})

	It("should recognize every command", func() {
		for _, name := range commands {
			p, err := NewParser(strings.NewReader("TXT01\n" + name + "\n"))
			Expect(err).NotTo(HaveOccurred())
			cmd, err := p.ParseCommand()
			Expect(err).NotTo(HaveOccurred())
			Expect(cmd.Name).To(Equal(name))
		}
	})
})

var _ = Describe("Encode", func() {
	It("should write values before the command", func() {
		var buf bytes.Buffer
		Expect(Encode(&buf, CmdSearch, Str("saf"), Int(5))).To(Succeed())
		Expect(buf.String()).To(Equal("\"saf\n5\nsearch\n"))
	})

	It("should round trip through the parser", func() {
		var buf bytes.Buffer
		buf.WriteString("TXT01")
		Expect(Encode(&buf, CmdComplete, Str("~/Code/ "))).To(Succeed())

		p, err := NewParser(&buf)
		Expect(err).NotTo(HaveOccurred())
		cmd, err := p.ParseCommand()
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Args).To(Equal([]Value{Str("~/Code/ ")}))
	})

	It("should refuse line breaks inside strings", func() {
		Expect(Encode(io.Discard, CmdClassify, Str("a\nb"))).NotTo(Succeed())
	})
})
