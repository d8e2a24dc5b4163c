package app

import (
	"fmt"
	"strconv"
)

// Command はサブコマンド名。
type Command string

const (
	// CommandServe は認証APIを起動する。引数なしの既定。
	CommandServe Command = "serve"
	// CommandWorker は確認トークンの定期クリーンアップを常駐実行する。
	CommandWorker Command = "worker"
	// CommandCleanup はクリーンアップを1回だけ実行して終了する。cronからの起動用。
	CommandCleanup Command = "cleanup"
	// CommandMigrate はスキーマを操作する。操作はMigrateArgsで指定する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandCleanup):     CommandCleanup,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 未知の名前や空の引数はserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// MigrateArgs はmigrateサブコマンドの引数。
type MigrateArgs struct {
	Action MigrateAction
	// Steps はdownで戻す数。
	Steps int
}

// ParseMigrateArgs は "migrate" に続く引数を解析する。
//
//	migrate              全て適用
//	migrate up           全て適用
//	migrate down N       N個戻す
//	migrate version      現在のバージョンを表示
func ParseMigrateArgs(args []string) (MigrateArgs, error) {
	if len(args) == 0 {
		return MigrateArgs{Action: MigrateUp}, nil
	}

	switch MigrateAction(args[0]) {
	case MigrateUp:
		return MigrateArgs{Action: MigrateUp}, nil
	case MigrateVersion:
		return MigrateArgs{Action: MigrateVersion}, nil
	case MigrateDown:
		// 全件ロールバックは受け付けない
		if len(args) < 2 {
			return MigrateArgs{}, fmt.Errorf("migrate down requires the number of steps")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return MigrateArgs{}, fmt.Errorf("invalid step count %q", args[1])
		}
		return MigrateArgs{Action: MigrateDown, Steps: n}, nil
	default:
		return MigrateArgs{}, fmt.Errorf("unknown migrate action %q", args[0])
	}
}
