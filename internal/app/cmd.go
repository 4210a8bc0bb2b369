package app

import "fmt"

// Command はCLIのサブコマンドを表す。
type Command string

const (
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
	// CommandRegister はアカウントを登録する。
	CommandRegister Command = "register"
	// CommandLogin はログインしてトークンを保存する。
	CommandLogin Command = "login"
	// CommandLogout は保存済みトークンを破棄する。
	CommandLogout Command = "logout"
	// CommandWhoAmI はトークンからデコードしたユーザーを表示する。
	CommandWhoAmI Command = "whoami"
	// CommandList はイベント一覧を表示する。
	CommandList Command = "list"
	// CommandShow はイベントを1件表示する。
	CommandShow Command = "show"
	// CommandCreate はイベントを作成する。
	CommandCreate Command = "create"
	// CommandEdit は自分のイベントを更新する。
	CommandEdit Command = "edit"
	// CommandDelete は自分のイベントを確認の上で削除する。
	CommandDelete Command = "delete"
	// CommandTags はタグ一覧を表示する。
	CommandTags Command = "tags"
	// CommandExport はイベント一覧をiCalendar形式で書き出す。
	CommandExport Command = "export"
)

// commands はサポートするサブコマンドの一覧。使い方の表示順でもある。
var commands = []Command{
	CommandRegister,
	CommandLogin,
	CommandLogout,
	CommandWhoAmI,
	CommandList,
	CommandShow,
	CommandCreate,
	CommandEdit,
	CommandDelete,
	CommandTags,
	CommandExport,
	CommandHelp,
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空、または -h / --help の場合はCommandHelpを返す。
// サポート外のコマンドの場合はエラーを返す。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandHelp, nil
	}

	switch args[0] {
	case "-h", "-help", "--help":
		return CommandHelp, nil
	}
	for _, c := range commands {
		if string(c) == args[0] {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (run `eventdesk help`)", args[0])
}

const usage = `Usage: eventdesk <command> [flags]

Commands:
  register  -first NAME -last NAME -username NAME [-password PW]
  login     -username NAME [-password PW]
  logout
  whoami
  list      [-tag NAME] [-time past|upcoming]
  show      ID
  create    -title T -date YYYY-MM-DDThh:mm -location L [-description D] [-type public|private] [-tag ID|NAME ...] [-list]
  edit      ID [-title T] [-date ...] [-location L] [-description D] [-type ...] [-tag ID|NAME ...] [-list]
  delete    ID [-yes]
  tags
  export    [-o FILE] [-name NAME] [-tag NAME] [-time past|upcoming]
  help

Environment:
  EVENTS_API_URL (required), EVENTDESK_SESSION_FILE, EVENTDESK_TIMEZONE, HTTP_TIMEOUT,
  API_RATE_LIMIT, API_RATE_BURST, API_MAX_RETRIES, API_RETRY_BACKOFF, LOG_LEVEL, METRICS_TEXTFILE
`
