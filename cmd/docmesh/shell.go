package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dep2p/go-docmesh"
	"github.com/dep2p/go-docmesh/pkg/types"
)

// errUsage 命令参数不完整
var errUsage = errors.New("参数不足，输入 help 查看用法")

const helpText = `命令:
  ls                  列出文档（* 为当前文档）
  new <name>          新建文档
  edit <id> <text>    替换文档内容
  show [id]           显示文档内容，缺省为当前文档
  rm <id>             删除文档
  use <id>            切换当前文档
  peers               列出会话与 rendezvous 在线节点
  connect <peer>      通过 rendezvous 连接指定节点
  disconnect <peer>   断开会话
  online | offline    上报联网状态
  stats               显示统计
  quit                退出
`

// shell 行命令解释器
type shell struct {
	node *docmesh.Node
	out  io.Writer
}

func newShell(node *docmesh.Node, out io.Writer) *shell {
	return &shell{node: node, out: out}
}

// exec 执行一行命令，返回是否退出
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	cmd, rest := splitWord(strings.TrimSpace(line))
	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprint(s.out, helpText)
		return false, nil
	case "ls":
		return false, s.list(ctx)
	case "new":
		if rest == "" {
			return false, errUsage
		}
		doc, err := s.node.CreateDocument(ctx, rest)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "已创建 %s (%s)\n", doc.Name, doc.ID)
		return false, nil
	case "edit":
		id, text := splitWord(rest)
		if id == "" {
			return false, errUsage
		}
		doc, err := s.node.UpdateContent(ctx, types.DocumentID(id), text)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%s 版本 %d\n", doc.Name, doc.Version)
		return false, nil
	case "show":
		return false, s.show(ctx, rest)
	case "rm":
		if rest == "" {
			return false, errUsage
		}
		return false, s.node.DeleteDocument(ctx, types.DocumentID(rest))
	case "use":
		if rest == "" {
			return false, errUsage
		}
		return false, s.node.SetActive(ctx, types.DocumentID(rest))
	case "peers":
		return false, s.peers(ctx)
	case "connect":
		if rest == "" {
			return false, errUsage
		}
		if err := s.node.Connect(ctx, types.PeerID(rest)); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "正在连接 %s\n", rest)
		return false, nil
	case "disconnect":
		if rest == "" {
			return false, errUsage
		}
		return false, s.node.Disconnect(ctx, types.PeerID(rest))
	case "online":
		s.node.SetOnline()
		fmt.Fprintln(s.out, s.node.Connectivity())
		return false, nil
	case "offline":
		s.node.SetOffline()
		fmt.Fprintln(s.out, s.node.Connectivity())
		return false, nil
	case "stats":
		st := s.node.Stats()
		fmt.Fprintf(s.out, "会话 %d  收 %d  发 %d  离线队列 %d  RTT %s\n",
			st.OpenSessions, st.MessagesIn, st.MessagesOut, st.PendingEdits, st.LastRTT)
		return false, nil
	default:
		return false, fmt.Errorf("未知命令: %s", cmd)
	}
}

func (s *shell) list(ctx context.Context) error {
	docs, err := s.node.Documents(ctx)
	if err != nil {
		return err
	}
	active, err := s.node.Active(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, d := range docs {
		mark := " "
		if d.ID == active {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%s\tv%d\n", mark, d.ID, d.Name, d.Version)
	}
	return tw.Flush()
}

func (s *shell) show(ctx context.Context, id string) error {
	docID := types.DocumentID(id)
	if docID == "" {
		active, err := s.node.Active(ctx)
		if err != nil {
			return err
		}
		docID = active
	}
	doc, err := s.node.Document(ctx, docID)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "# %s (v%d)\n%s\n", doc.Name, doc.Version, doc.Content)
	return nil
}

func (s *shell) peers(ctx context.Context) error {
	sessions, err := s.node.Sessions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "联网状态: %s\n", s.node.Connectivity())
	for _, info := range sessions {
		fmt.Fprintf(s.out, "  %s  %s  RTT %s  待发 %d\n", info.Peer, info.State, info.RTT, info.Queued)
	}
	if roster := s.node.Roster(); len(roster) > 0 {
		fmt.Fprintf(s.out, "在线: %v\n", roster)
	}
	return nil
}

// splitWord 拆出第一个词，其余部分原样返回
func splitWord(s string) (string, string) {
	word, rest, _ := strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}
