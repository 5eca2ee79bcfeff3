package utils

// bufio.Reader 和 bytes.Buffer 都实现了 ByteReader, 地址的解析 只需要这两个方法
type ByteReader interface {
	ReadByte() (byte, error)
	Read(p []byte) (n int, err error)
}
