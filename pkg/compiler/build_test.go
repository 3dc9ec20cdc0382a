package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSimpleReturn(t *testing.T) {
	out, err := Build(`int main(void) { return 2 + 3 * 4; }`, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, "main:")
	assert.Contains(t, out, "pushq %rbp")
	assert.Contains(t, out, "ret")
}

func TestBuildMachOPrefixesGlobals(t *testing.T) {
	out, err := Build(`int main(void) { return 0; }`, TargetMachO)
	require.NoError(t, err)
	assert.Contains(t, out, "_main:")
	assert.Contains(t, out, ".globl _main")
}

func TestBuildFunctionCallAndLocals(t *testing.T) {
	src := `
int add(int a, int b) {
    int sum = a + b;
    return sum;
}

int main(void) {
    return add(3, 4);
}
`
	out, err := Build(src, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, "add:")
	assert.Contains(t, out, "call add")
}

func TestBuildLoopsAndControlFlow(t *testing.T) {
	src := `
int main(void) {
    int i = 0;
    int total = 0;
    while (i < 10) {
        if (i % 2 == 0) {
            total = total + i;
        }
        i = i + 1;
    }
    return total;
}
`
	out, err := Build(src, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, "jmp")
}

func TestBuildPointersAndArrays(t *testing.T) {
	src := `
int sum_array(int *arr, int n) {
    int total = 0;
    for (int i = 0; i < n; i = i + 1) {
        total = total + arr[i];
    }
    return total;
}

int main(void) {
    int nums[3] = {1, 2, 3};
    return sum_array(nums, 3);
}
`
	out, err := Build(src, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, "sum_array:")
}

func TestBuildDoublesAndConversions(t *testing.T) {
	src := `
double average(double a, double b) {
    return (a + b) / 2.0;
}

int main(void) {
    double r = average(3.0, 4.0);
    int truncated = (int) r;
    return truncated;
}
`
	out, err := Build(src, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, "addsd")
	assert.Contains(t, out, "cvttsd2si")
}

func TestBuildStaticAndGlobalData(t *testing.T) {
	src := `
int counter = 0;

int next(void) {
    counter = counter + 1;
    return counter;
}
`
	out, err := Build(src, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, ".data")
	assert.Contains(t, out, "counter:")
}

func TestBuildNegatesDoubleViaSignMaskInRodata(t *testing.T) {
	src := `
double negate(double x) {
    return -x;
}

int main(void) {
    return (int) negate(3.0);
}
`
	out, err := Build(src, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, "xorpd .Lnegate_double(%rip)")
	assert.Contains(t, out, ".Lnegate_double:")
	assert.Contains(t, out, ".section .rodata")
}

func TestBuildDoesNotEmitSignMaskWithoutDoubleNegation(t *testing.T) {
	out, err := Build(`int main(void) { return 1 + 2; }`, TargetELF)
	require.NoError(t, err)
	assert.NotContains(t, out, ".Lnegate_double")
}

func TestBuildPadsOddStackArgumentCountForAlignment(t *testing.T) {
	src := `
int sum7(int a, int b, int c, int d, int e, int f, int g) {
    return a + b + c + d + e + f + g;
}

int main(void) {
    return sum7(1, 2, 3, 4, 5, 6, 7);
}
`
	out, err := Build(src, TargetELF)
	require.NoError(t, err)
	assert.Contains(t, out, "call sum7")
	assert.Contains(t, out, "subq $8, %rsp")
}

func TestBuildReportsLexError(t *testing.T) {
	_, err := Build(`int main(void) { return 1 @ 2; }`, TargetELF)
	require.Error(t, err)
}

func TestBuildReportsTypeError(t *testing.T) {
	_, err := Build(`int main(void) { int *p; return p; }`, TargetELF)
	require.Error(t, err)
}

func TestBuildReportsSemanticErrorOnRedeclaration(t *testing.T) {
	_, err := Build(`int main(void) { int x = 1; int x = 2; return x; }`, TargetELF)
	require.Error(t, err)
}
