package functions

import "github.com/leapstack-labs/leapcell/pkg/core"

// builtins returns the builtin catalog. Each call builds fresh descriptors.
func builtins() []*Builtin {
	number, boolean, text, follows := core.KindNumber, core.KindBool, core.KindText, core.KindEmpty

	fold := func(name, op, doc string) *Builtin {
		return &Builtin{name: name, arity: core.AtLeast(1), Rule: RuleFold, Target: op, Ranges: RangeFlatten, Returns: number, Doc: doc}
	}
	aggregate := func(name, helper string, returns core.ValueKind, doc string) *Builtin {
		return &Builtin{name: name, arity: core.AtLeast(1), Rule: RuleAggregate, Target: "_xl." + helper, Ranges: RangeFlatten, Returns: returns, Doc: doc}
	}
	native := func(name, target string, arity core.Arity, doc string) *Builtin {
		return &Builtin{name: name, arity: arity, Rule: RuleNative, Target: target, Returns: number, Doc: doc}
	}
	runtime := func(name, helper string, arity core.Arity, returns core.ValueKind, doc string) *Builtin {
		return &Builtin{name: name, arity: arity, Rule: RuleRuntime, Target: "_xl." + helper, Returns: returns, Doc: doc}
	}
	lookup := func(name, helper string, arity core.Arity, tables []int, returns core.ValueKind, doc string) *Builtin {
		return &Builtin{name: name, arity: arity, Rule: RuleLookup, Target: "_xl." + helper, Ranges: RangeTable, Tables: tables, Returns: returns, Doc: doc}
	}
	keyed := func(b *Builtin) *Builtin {
		b.Keys = []int{0}
		return b
	}
	criteria := func(name, helper string, arity core.Arity, tables, keys []int, doc string) *Builtin {
		return &Builtin{name: name, arity: arity, Rule: RuleCriteria, Target: "_xl." + helper, Ranges: RangeTable, Tables: tables, Keys: keys, Returns: number, Doc: doc}
	}
	typeTest := func(name string, returns core.ValueKind, doc string) *Builtin {
		return &Builtin{name: name, arity: core.Exactly(1), Rule: RuleTypeTest, Returns: returns, Doc: doc}
	}

	one, two := core.Exactly(1), core.Exactly(2)

	return []*Builtin{
		fold("SUM", "+", "Sum of all arguments"),
		fold("PRODUCT", "*", "Product of all arguments"),

		aggregate("AVERAGE", "average", number, "Arithmetic mean"),
		aggregate("MIN", "min", number, "Smallest argument"),
		aggregate("MAX", "max", number, "Largest argument"),
		aggregate("MEDIAN", "median", number, "Median of all arguments"),
		aggregate("SUMSQ", "sumsq", number, "Sum of squares"),
		aggregate("GEOMEAN", "geomean", number, "Geometric mean of positive arguments"),
		aggregate("HARMEAN", "harmean", number, "Harmonic mean of positive arguments"),
		aggregate("GCD", "gcd", number, "Greatest common divisor"),
		aggregate("LCM", "lcm", number, "Least common multiple"),
		aggregate("MULTINOMIAL", "multinomial", number, "Factorial of the sum over the product of factorials"),
		aggregate("AND", "all", boolean, "TRUE when every argument is true"),
		aggregate("OR", "any", boolean, "TRUE when some argument is true"),
		aggregate("XOR", "xor", boolean, "TRUE when an odd number of arguments is true"),
		aggregate("CONCAT", "concat", text, "Joins arguments as text"),
		aggregate("CONCATENATE", "concat", text, "Joins arguments as text"),

		{name: "COUNT", arity: core.AtLeast(1), Rule: RuleCount, Ranges: RangeFlatten, Returns: number, Doc: "Number of numeric arguments"},
		{name: "COUNTA", arity: core.AtLeast(1), Rule: RuleCount, Ranges: RangeFlatten, Returns: number, Doc: "Number of non-empty arguments"},

		{name: "IF", arity: core.Between(2, 3), Rule: RuleConditional, Returns: follows, Doc: "IF(test, then, [else])"},
		{name: "IFS", arity: core.AtLeast(2), Rule: RuleConditional, Returns: follows, Doc: "First value whose test is true"},
		{name: "SWITCH", arity: core.AtLeast(3), Rule: RuleConditional, Returns: follows, Doc: "Value matching an expression, with optional default"},
		{name: "NOT", arity: one, Rule: RuleLogical, Target: "not", Returns: boolean, Doc: "Logical negation"},

		native("SQRT", "math.sqrt", one, "Square root"),
		native("EXP", "math.exp", one, "e raised to a power"),
		native("LN", "math.log", one, "Natural logarithm"),
		native("ABS", "math.fabs", one, "Absolute value"),
		native("SIN", "math.sin", one, "Sine"),
		native("COS", "math.cos", one, "Cosine"),
		native("TAN", "math.tan", one, "Tangent"),
		native("ASIN", "math.asin", one, "Arcsine"),
		native("ACOS", "math.acos", one, "Arccosine"),
		native("ATAN", "math.atan", one, "Arctangent"),
		native("SINH", "math.sinh", one, "Hyperbolic sine"),
		native("COSH", "math.cosh", one, "Hyperbolic cosine"),
		native("TANH", "math.tanh", one, "Hyperbolic tangent"),
		native("ASINH", "math.asinh", one, "Inverse hyperbolic sine"),
		native("ACOSH", "math.acosh", one, "Inverse hyperbolic cosine"),
		native("ATANH", "math.atanh", one, "Inverse hyperbolic tangent"),
		native("DEGREES", "math.degrees", one, "Radians to degrees"),
		native("RADIANS", "math.radians", one, "Degrees to radians"),
		native("POWER", "math.pow", two, "Number raised to a power"),

		runtime("ATAN2", "atan2", two, number, "Arctangent of x and y coordinates"),
		runtime("LOG", "log", core.Between(1, 2), number, "Logarithm, base 10 by default"),
		runtime("LOG10", "log10", one, number, "Base 10 logarithm"),
		runtime("ROUND", "round", two, number, "Round half away from zero to a number of digits"),
		runtime("ROUNDUP", "roundup", two, number, "Round away from zero"),
		runtime("ROUNDDOWN", "rounddown", two, number, "Round toward zero"),
		runtime("TRUNC", "trunc", core.Between(1, 2), number, "Truncate to a number of digits"),
		runtime("INT", "int", one, number, "Round down to an integer"),
		runtime("MOD", "mod", two, number, "Remainder with the sign of the divisor"),
		runtime("QUOTIENT", "quotient", two, number, "Integer part of a division"),
		runtime("SIGN", "sign", one, number, "Sign of a number"),
		runtime("CEILING", "ceiling", core.Between(1, 2), number, "Round up to a multiple"),
		runtime("FLOOR", "floor", core.Between(1, 2), number, "Round down to a multiple"),
		runtime("EVEN", "even", one, number, "Round away from zero to an even integer"),
		runtime("ODD", "odd", one, number, "Round away from zero to an odd integer"),
		runtime("ISEVEN", "iseven", one, boolean, "TRUE for even numbers"),
		runtime("ISODD", "isodd", one, boolean, "TRUE for odd numbers"),
		runtime("FACT", "fact", one, number, "Factorial"),
		runtime("SQRTPI", "sqrtpi", one, number, "Square root of a number times pi"),
		runtime("FACTDOUBLE", "factdouble", one, number, "Double factorial"),
		runtime("COMBIN", "combin", two, number, "Number of combinations without repetition"),
		runtime("COMBINA", "combina", two, number, "Number of combinations with repetition"),
		runtime("MROUND", "mround", two, number, "Round half away from zero to a multiple"),
		runtime("COT", "cot", one, number, "Cotangent"),
		runtime("COTH", "coth", one, number, "Hyperbolic cotangent"),
		runtime("CSC", "csc", one, number, "Cosecant"),
		runtime("CSCH", "csch", one, number, "Hyperbolic cosecant"),
		runtime("SEC", "sec", one, number, "Secant"),
		runtime("SECH", "sech", one, number, "Hyperbolic secant"),
		runtime("ACOT", "acot", one, number, "Arccotangent, between 0 and pi"),
		runtime("ACOTH", "acoth", one, number, "Inverse hyperbolic cotangent"),

		{name: "PI", arity: core.Exactly(0), Rule: RuleConstant, Target: "math.pi", Returns: number, Doc: "The constant pi"},
		{name: "TRUE", arity: core.Exactly(0), Rule: RuleConstant, Target: "True", Returns: boolean, Doc: "Logical true"},
		{name: "FALSE", arity: core.Exactly(0), Rule: RuleConstant, Target: "False", Returns: boolean, Doc: "Logical false"},

		{name: "CHOOSE", arity: core.AtLeast(2), Rule: RuleLookup, Target: "_xl.choose", Returns: follows, Doc: "CHOOSE(index, value1, ...)"},
		lookup("INDEX", "index", core.Between(2, 3), []int{0}, follows, "INDEX(range, row, [column])"),
		keyed(lookup("MATCH", "match", core.Between(2, 3), []int{1}, number, "MATCH(value, range, [mode]): position of a value, mode 1 by default")),
		keyed(lookup("VLOOKUP", "vlookup", core.Between(3, 4), []int{1}, follows, "VLOOKUP(value, range, column, [approximate])")),
		keyed(lookup("HLOOKUP", "hlookup", core.Between(3, 4), []int{1}, follows, "HLOOKUP(value, range, row, [approximate])")),
		keyed(lookup("LOOKUP", "lookup", core.Between(2, 3), []int{1, 2}, follows, "LOOKUP(value, range, [results]): approximate match in an ascending vector")),
		lookup("SUMPRODUCT", "sumproduct", core.AtLeast(1), []int{AllArgs}, number, "Sum of element-wise products"),
		lookup("SUMX2MY2", "sumx2my2", two, []int{AllArgs}, number, "Sum of the differences of squares of two ranges"),
		lookup("SUMXMY2", "sumxmy2", two, []int{AllArgs}, number, "Sum of squared differences of two ranges"),
		lookup("LARGE", "large", two, []int{0}, number, "LARGE(range, k): k-th largest number"),
		lookup("SMALL", "small", two, []int{0}, number, "SMALL(range, k): k-th smallest number"),
		lookup("TRIMMEAN", "trimmean", two, []int{0}, number, "TRIMMEAN(range, percent): mean without the outer percent of the data"),
		lookup("SERIESSUM", "seriessum", core.Exactly(4), []int{3}, number, "SERIESSUM(x, n, m, coefficients): sum of a power series"),

		criteria("AVERAGEIF", "averageif", core.Between(2, 3), []int{0, 2}, []int{1}, "AVERAGEIF(range, criterion, [average_range])"),
		criteria("MAXIFS", "maxifs", core.AtLeast(3), []int{CriteriaPairs}, nil, "MAXIFS(max_range, range1, criterion1, ...)"),
		criteria("MINIFS", "minifs", core.AtLeast(3), []int{CriteriaPairs}, nil, "MINIFS(min_range, range1, criterion1, ...)"),

		typeTest("ISNUMBER", boolean, "TRUE when the argument is a number"),
		typeTest("ISTEXT", boolean, "TRUE when the argument is text"),
		typeTest("ISNONTEXT", boolean, "TRUE when the argument is not text"),
		typeTest("ISLOGICAL", boolean, "TRUE when the argument is a logical value"),
		typeTest("ISBLANK", boolean, "TRUE when the argument is an empty cell"),
		typeTest("TYPE", number, "1 for numbers, 2 for text, 4 for logical values"),
	}
}
