// Package wire 定义 docmesh 的线上消息
//
// 两组封闭的消息变体，均为带 "type" 字段的 JSON：
//
// 复制消息（对等数据通道）：
//
//	{"type":"init","documents":[{"id","name","content","version"}],"lastUpdate":N}
//	{"type":"content","fileId":ID,"content":S,"version":N}
//	{"type":"delete","fileId":ID}
//	{"type":"ping","nonce":N} / {"type":"pong","nonce":N}
//
// 信令消息（rendezvous 通道）：
//
//	{"type":"join","id":P}
//	{"type":"users","users":[P...]}
//	{"type":"offer"|"answer"|"candidate", <payload>, "from":P, "to":P}
//
// 每组变体通过 Accept 方法分发到对应的 Handler 接口。
// 新增变体必须同时在 Handler 上增加方法，所有实现都会在编译期报错。
package wire
