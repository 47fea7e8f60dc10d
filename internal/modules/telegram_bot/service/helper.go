package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func f2(v float64) string { // для красивого вывода
	return fmt.Sprintf("%.2f", v)
}

// parseNum понимает и запятую, и точку. Ноль и отрицательные не принимаем.
func parseNum(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil {
		return 0, errors.Errorf("не число: %q", s)
	}
	if v <= 0 {
		return 0, errors.Errorf("должно быть > 0: %q", s)
	}
	return v, nil
}
