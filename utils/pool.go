package utils

import (
	"bytes"
	"sync"
)

var (
	standardBytesPool sync.Pool //专门储存 长度为 StandardBytesLength 的 []byte

	// io.Copy 内部默认buffer大小为 32k, 我们relay也用 32k
	standardPacketPool sync.Pool // 专门储存 长度为 MaxBufLen 的 []byte

	bufPool sync.Pool //储存 *bytes.Buffer
)

// 即MTU; 协议头 和 小的写入 一般都在这个长度以内
const StandardBytesLength int = 1500

// relay时每个方向最多只缓存这么多, 写端阻塞时读端也就停了.
const MaxBufLen = 32 * 1024

func init() {
	standardBytesPool.New = func() any { return make([]byte, StandardBytesLength) }
	standardPacketPool.New = func() any { return make([]byte, MaxBufLen) }
	bufPool.New = func() any { return &bytes.Buffer{} }
}

// 从Pool中获取一个 *bytes.Buffer, 用于拼接 协议头
func GetBuf() *bytes.Buffer {
	return bufPool.Get().(*bytes.Buffer)
}

func PutBuf(buf *bytes.Buffer) {
	buf.Reset()
	bufPool.Put(buf)
}

// GetPacket 返回 MaxBufLen 长度的 []byte, 用于 relay
func GetPacket() []byte {
	return standardPacketPool.Get().([]byte)
}

func PutPacket(bs []byte) {
	PutBytes(bs)
}

// 从pool中获取 []byte, 根据给出长度不同，来源于的Pool会不同. 超过 MaxBufLen 的直接 make.
func GetBytes(size int) []byte {
	if size <= StandardBytesLength {
		return standardBytesPool.Get().([]byte)[:size]
	}
	if size <= MaxBufLen {
		return GetPacket()[:size]
	}
	return make([]byte, size)
}

// 根据 cap(bs) 选择放入哪个pool, 只有 cap(bs)>=1500 才会被处理
func PutBytes(bs []byte) {
	c := cap(bs)
	switch {
	case c < StandardBytesLength:
	case c < MaxBufLen:
		standardBytesPool.Put(bs[:StandardBytesLength])
	default:
		standardPacketPool.Put(bs[:MaxBufLen])
	}
}
