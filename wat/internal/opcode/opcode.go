// Package opcode maps WAT instruction mnemonics to binary opcodes and
// describes each instruction's immediate shape.
package opcode

// Imm describes the immediate(s) an instruction carries.
type Imm int

const (
	ImmNone Imm = iota
	ImmBlock
	ImmLabel
	ImmCall
	ImmLocal
	ImmMemArg
	ImmMemIdx // memory.size / memory.grow trailing zero byte
	ImmI32
	ImmI64
	ImmF32
	ImmF64
)

type Info struct {
	Code     byte
	Imm      Imm
	NatAlign uint32 // log2 of natural alignment, ImmMemArg only
}

var Table = map[string]Info{
	"unreachable": {Code: 0x00},
	"nop":         {Code: 0x01},
	"block":       {Code: 0x02, Imm: ImmBlock},
	"loop":        {Code: 0x03, Imm: ImmBlock},
	"if":          {Code: 0x04, Imm: ImmBlock},
	"else":        {Code: 0x05},
	"end":         {Code: 0x0b},
	"br":          {Code: 0x0c, Imm: ImmLabel},
	"br_if":       {Code: 0x0d, Imm: ImmLabel},
	"return":      {Code: 0x0f},
	"call":        {Code: 0x10, Imm: ImmCall},

	"drop":   {Code: 0x1a},
	"select": {Code: 0x1b},

	"local.get": {Code: 0x20, Imm: ImmLocal},
	"local.set": {Code: 0x21, Imm: ImmLocal},
	"local.tee": {Code: 0x22, Imm: ImmLocal},

	"i32.load":     {Code: 0x28, Imm: ImmMemArg, NatAlign: 2},
	"i64.load":     {Code: 0x29, Imm: ImmMemArg, NatAlign: 3},
	"f32.load":     {Code: 0x2a, Imm: ImmMemArg, NatAlign: 2},
	"f64.load":     {Code: 0x2b, Imm: ImmMemArg, NatAlign: 3},
	"i32.load8_s":  {Code: 0x2c, Imm: ImmMemArg, NatAlign: 0},
	"i32.load8_u":  {Code: 0x2d, Imm: ImmMemArg, NatAlign: 0},
	"i32.load16_s": {Code: 0x2e, Imm: ImmMemArg, NatAlign: 1},
	"i32.load16_u": {Code: 0x2f, Imm: ImmMemArg, NatAlign: 1},
	"i64.load8_s":  {Code: 0x30, Imm: ImmMemArg, NatAlign: 0},
	"i64.load8_u":  {Code: 0x31, Imm: ImmMemArg, NatAlign: 0},
	"i64.load16_s": {Code: 0x32, Imm: ImmMemArg, NatAlign: 1},
	"i64.load16_u": {Code: 0x33, Imm: ImmMemArg, NatAlign: 1},
	"i64.load32_s": {Code: 0x34, Imm: ImmMemArg, NatAlign: 2},
	"i64.load32_u": {Code: 0x35, Imm: ImmMemArg, NatAlign: 2},
	"i32.store":    {Code: 0x36, Imm: ImmMemArg, NatAlign: 2},
	"i64.store":    {Code: 0x37, Imm: ImmMemArg, NatAlign: 3},
	"f32.store":    {Code: 0x38, Imm: ImmMemArg, NatAlign: 2},
	"f64.store":    {Code: 0x39, Imm: ImmMemArg, NatAlign: 3},
	"i32.store8":   {Code: 0x3a, Imm: ImmMemArg, NatAlign: 0},
	"i32.store16":  {Code: 0x3b, Imm: ImmMemArg, NatAlign: 1},
	"i64.store8":   {Code: 0x3c, Imm: ImmMemArg, NatAlign: 0},
	"i64.store16":  {Code: 0x3d, Imm: ImmMemArg, NatAlign: 1},
	"i64.store32":  {Code: 0x3e, Imm: ImmMemArg, NatAlign: 2},

	"memory.size": {Code: 0x3f, Imm: ImmMemIdx},
	"memory.grow": {Code: 0x40, Imm: ImmMemIdx},

	"i32.const": {Code: 0x41, Imm: ImmI32},
	"i64.const": {Code: 0x42, Imm: ImmI64},
	"f32.const": {Code: 0x43, Imm: ImmF32},
	"f64.const": {Code: 0x44, Imm: ImmF64},

	"i32.eqz":  {Code: 0x45},
	"i32.eq":   {Code: 0x46},
	"i32.ne":   {Code: 0x47},
	"i32.lt_s": {Code: 0x48},
	"i32.lt_u": {Code: 0x49},
	"i32.gt_s": {Code: 0x4a},
	"i32.gt_u": {Code: 0x4b},
	"i32.le_s": {Code: 0x4c},
	"i32.le_u": {Code: 0x4d},
	"i32.ge_s": {Code: 0x4e},
	"i32.ge_u": {Code: 0x4f},

	"i64.eqz":  {Code: 0x50},
	"i64.eq":   {Code: 0x51},
	"i64.ne":   {Code: 0x52},
	"i64.lt_s": {Code: 0x53},
	"i64.lt_u": {Code: 0x54},
	"i64.gt_s": {Code: 0x55},
	"i64.gt_u": {Code: 0x56},
	"i64.le_s": {Code: 0x57},
	"i64.le_u": {Code: 0x58},
	"i64.ge_s": {Code: 0x59},
	"i64.ge_u": {Code: 0x5a},

	"i32.clz":    {Code: 0x67},
	"i32.ctz":    {Code: 0x68},
	"i32.popcnt": {Code: 0x69},
	"i32.add":    {Code: 0x6a},
	"i32.sub":    {Code: 0x6b},
	"i32.mul":    {Code: 0x6c},
	"i32.div_s":  {Code: 0x6d},
	"i32.div_u":  {Code: 0x6e},
	"i32.rem_s":  {Code: 0x6f},
	"i32.rem_u":  {Code: 0x70},
	"i32.and":    {Code: 0x71},
	"i32.or":     {Code: 0x72},
	"i32.xor":    {Code: 0x73},
	"i32.shl":    {Code: 0x74},
	"i32.shr_s":  {Code: 0x75},
	"i32.shr_u":  {Code: 0x76},
	"i32.rotl":   {Code: 0x77},
	"i32.rotr":   {Code: 0x78},

	"i64.clz":    {Code: 0x79},
	"i64.ctz":    {Code: 0x7a},
	"i64.popcnt": {Code: 0x7b},
	"i64.add":    {Code: 0x7c},
	"i64.sub":    {Code: 0x7d},
	"i64.mul":    {Code: 0x7e},
	"i64.div_s":  {Code: 0x7f},
	"i64.div_u":  {Code: 0x80},
	"i64.rem_s":  {Code: 0x81},
	"i64.rem_u":  {Code: 0x82},
	"i64.and":    {Code: 0x83},
	"i64.or":     {Code: 0x84},
	"i64.xor":    {Code: 0x85},
	"i64.shl":    {Code: 0x86},
	"i64.shr_s":  {Code: 0x87},
	"i64.shr_u":  {Code: 0x88},
	"i64.rotl":   {Code: 0x89},
	"i64.rotr":   {Code: 0x8a},

	"i32.wrap_i64":     {Code: 0xa7},
	"i64.extend_i32_s": {Code: 0xac},
	"i64.extend_i32_u": {Code: 0xad},
}
