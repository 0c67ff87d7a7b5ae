package binio

// Fixed Unity aggregates. Each is a run of float32 in cursor byte order.

type Vector2 struct{ X, Y float32 }

type Vector3 struct{ X, Y, Z float32 }

type Vector4 struct{ X, Y, Z, W float32 }

type Quaternion struct{ X, Y, Z, W float32 }

// Color is an RGBA color with float components.
type Color struct{ R, G, B, A float32 }

// Rect is x, y, width, height.
type Rect struct{ X, Y, Width, Height float32 }

// Matrix4x4 is stored column-major, as Unity serializes Matrix4x4f.
type Matrix4x4 [16]float32

func (r *Reader) floats(dst []float32) error {
	for i := range dst {
		v, err := r.F32()
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func (r *Reader) Vector2() (Vector2, error) {
	var f [2]float32
	err := r.floats(f[:])
	return Vector2{f[0], f[1]}, err
}

func (r *Reader) Vector3() (Vector3, error) {
	var f [3]float32
	err := r.floats(f[:])
	return Vector3{f[0], f[1], f[2]}, err
}

func (r *Reader) Vector4() (Vector4, error) {
	var f [4]float32
	err := r.floats(f[:])
	return Vector4{f[0], f[1], f[2], f[3]}, err
}

func (r *Reader) Quaternion() (Quaternion, error) {
	var f [4]float32
	err := r.floats(f[:])
	return Quaternion{f[0], f[1], f[2], f[3]}, err
}

func (r *Reader) Color() (Color, error) {
	var f [4]float32
	err := r.floats(f[:])
	return Color{f[0], f[1], f[2], f[3]}, err
}

func (r *Reader) Rect() (Rect, error) {
	var f [4]float32
	err := r.floats(f[:])
	return Rect{f[0], f[1], f[2], f[3]}, err
}

func (r *Reader) Matrix4x4() (Matrix4x4, error) {
	var m Matrix4x4
	err := r.floats(m[:])
	return m, err
}

func (w *Writer) floats(src ...float32) {
	for _, v := range src {
		w.F32(v)
	}
}

func (w *Writer) Vector2(v Vector2)       { w.floats(v.X, v.Y) }
func (w *Writer) Vector3(v Vector3)       { w.floats(v.X, v.Y, v.Z) }
func (w *Writer) Vector4(v Vector4)       { w.floats(v.X, v.Y, v.Z, v.W) }
func (w *Writer) Quaternion(v Quaternion) { w.floats(v.X, v.Y, v.Z, v.W) }
func (w *Writer) Color(v Color)           { w.floats(v.R, v.G, v.B, v.A) }
func (w *Writer) Rect(v Rect)             { w.floats(v.X, v.Y, v.Width, v.Height) }
func (w *Writer) Matrix4x4(m Matrix4x4)   { w.floats(m[:]...) }
