// Package signaling 实现会话建立所需的 rendezvous 信令
//
// 两个部分：
//
//   - Point：rendezvous 服务端。登记 join 的节点，在每次加入或离开时向所有成员广播
//     在线名单，按 to 字段转发 offer/answer/candidate，并用发送方 join 时的 ID
//     覆盖 from 字段。每个连接独立限速。
//   - Client：节点侧客户端。连接 Point 并 join，收到名单后对每个尚未建立会话的节点
//     发起协商。只有 ID 字典序较小的一方发起，避免双方同时 offer。
//
// 协商负载对信令层不透明，由 Negotiator（通常是 WebRTC 传输）生成与消费。
//
// # 协商时序
//
//	A (较小 ID)                 Point                     B
//	  │ join ───────────────────▶ │ ◀──────────────── join │
//	  │ ◀──────── users ───────── │ ───────── users ─────▶ │
//	  │ offer(to=B) ────────────▶ │ ── offer(from=A) ────▶ │
//	  │ ◀──── answer(from=B) ──── │ ◀────── answer(to=A) ─ │
//	  │ candidate ◀─────────────▶ │ ◀──────────▶ candidate │
package signaling
