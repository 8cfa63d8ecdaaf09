package optimize

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// 高斯过程代理模型，输入为 [0,1] 缩放后的参数向量，目标值先做标准化

var errNotPositiveDefinite = errors.New("kernel matrix is not positive definite")

// 长度尺度候选，按对数边际似然挑选
var lengthScales = []float64{0.1, 0.2, 0.35, 0.5, 0.75, 1.0, 2.0}

const (
	jitter = 1e-6
	noise  = 1e-4
)

// matern52 Matérn 5/2 核，信号方差为 1
func matern52(a, b []float64, length float64) float64 {
	var d2 float64
	for i := range a {
		d := (a[i] - b[i]) / length
		d2 += d * d
	}
	r := math.Sqrt(5 * d2)
	return (1 + r + r*r/3) * math.Exp(-r)
}

type gp struct {
	x      [][]float64
	length float64
	chol   *mat.Cholesky
	alpha  *mat.VecDense
	mean   float64
	std    float64
}

// fitGP 对每个长度尺度做一次 Cholesky，保留对数边际似然最大的模型
func fitGP(x [][]float64, y []float64) (*gp, error) {
	mean, std := meanStd(y)
	norm := make([]float64, len(y))
	for i, v := range y {
		norm[i] = (v - mean) / std
	}

	var best *gp
	bestLL := math.Inf(-1)
	for _, l := range lengthScales {
		m, ll, err := fitWithLength(x, norm, l)
		if err != nil {
			continue
		}
		if ll > bestLL {
			best, bestLL = m, ll
		}
	}
	if best == nil {
		return nil, errNotPositiveDefinite
	}
	best.mean, best.std = mean, std
	return best, nil
}

func kernel(x [][]float64, length float64) *mat.SymDense {
	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := matern52(x[i], x[j], length)
			if i == j {
				v += noise + jitter
			}
			k.SetSym(i, j, v)
		}
	}
	return k
}

func factor(k *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return nil, errNotPositiveDefinite
	}
	return &chol, nil
}

func fitWithLength(x [][]float64, y []float64, length float64) (*gp, float64, error) {
	chol, err := factor(kernel(x, length))
	if err != nil {
		return nil, 0, err
	}
	yv := mat.NewVecDense(len(y), y)
	alpha := mat.NewVecDense(len(y), nil)
	if err := chol.SolveVecTo(alpha, yv); err != nil {
		return nil, 0, err
	}

	n := float64(len(y))
	ll := -0.5*mat.Dot(yv, alpha) - 0.5*chol.LogDet() - 0.5*n*math.Log(2*math.Pi)
	return &gp{x: x, length: length, chol: chol, alpha: alpha}, ll, nil
}

// predict 返回原始尺度下的均值和标准差
func (g *gp) predict(x []float64) (mu, sigma float64) {
	ks := mat.NewVecDense(len(g.x), nil)
	for i, xi := range g.x {
		ks.SetVec(i, matern52(x, xi, g.length))
	}
	mu = mat.Dot(ks, g.alpha)

	variance := 1e-12
	var w mat.VecDense
	if err := g.chol.SolveVecTo(&w, ks); err == nil {
		variance = math.Max(1-mat.Dot(ks, &w), variance)
	}
	return mu*g.std + g.mean, math.Sqrt(variance) * g.std
}

// expectedImprovement 最小化问题的 EI，xi 为探索系数
func expectedImprovement(mu, sigma, best, xi float64) float64 {
	if sigma <= 0 {
		return 0
	}
	imp := best - mu - xi
	z := imp / sigma
	ei := imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	if ei < 0 {
		return 0
	}
	return ei
}

// meanStd 总体标准差，样本不足或方差为 0 时标准差记为 1
func meanStd(y []float64) (float64, float64) {
	if len(y) == 0 {
		return 0, 1
	}
	mean, variance := stat.PopMeanVariance(y, nil)
	std := math.Sqrt(variance)
	if std < 1e-12 || math.IsNaN(std) {
		std = 1
	}
	return mean, std
}
