// Package hwy provides the portable CPU layer the convolution kernels build
// on: portable vectors, runtime capability dispatch, cache size detection,
// bfloat16 conversion, aligned scratch memory and a bf16 matrix tile
// accumulator.
//
// Vec holds up to one register of lanes, MaxLanes wide for the current
// level. Loops process whole vectors and finish with a masked tail:
//
//	for ; i+lanes <= len(x); i += lanes {
//	    hwy.Store(hwy.MulAdd(hwy.Load(x[i:]), scale, bias), x[i:])
//	}
//	mask := hwy.TailMask[float32](len(x) - i)
//	hwy.MaskStore(mask, hwy.MulAdd(hwy.MaskLoad(mask, x[i:]), scale, bias), x[i:])
//
// Capabilities are detected once at init. HWY_NO_SIMD forces the scalar
// tier, HWY_NO_AMX hides the tile unit and HWY_CACHE_L1/L2/L3 override the
// detected cache sizes:
//
//	import "github.com/ajroetker/go-synet/hwy"
//
//	caps := hwy.Detect()
//	cache := hwy.DetectCacheSizes()
//	fmt.Println(hwy.CurrentName(), caps.Tile, cache)
//
//	// Round a row to bfloat16 and back.
//	b := make([]hwy.BFloat16, len(row))
//	hwy.Float32ToBFloat16Slice(b, row)
//	hwy.BFloat16ToFloat32Slice(row, b)
//
//	// Carve aligned typed slices from one reusable buffer.
//	var buf hwy.Buffer
//	a := hwy.NewArena(buf.Resize(size))
//	acc := a.Float32s(n)
package hwy
