package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hitoshi/eventdesk/internal/controller"
)

// prompter は標準入力から対話的に値を読み込む。
// 問い合わせ文は標準エラーに出し、標準出力は描画結果だけにする。
type prompter struct {
	in   *bufio.Reader
	file *os.File // 端末の場合のみ。パスワードのエコーを止めるのに使う
	out  io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.file = f
	}
	return p
}

// line は1行読み込んで前後の空白を除いて返す。
func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(s), nil
}

// password はパスワードを読み込む。端末ではエコーしない。
func (p *prompter) password(label string) (string, error) {
	if p.file == nil {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(int(p.file.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// confirm はy/yesの入力で同意とみなす。読み込めない場合は拒否とみなす。
func (p *prompter) confirm(prompt string) bool {
	answer, err := p.line(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// confirmer はdelete用のConfirmerを返す。assumeYesの場合は問い合わせない。
func (p *prompter) confirmer(assumeYes bool) controller.Confirmer {
	if assumeYes {
		return controller.ConfirmFunc(func(string) bool { return true })
	}
	return controller.ConfirmFunc(p.confirm)
}
